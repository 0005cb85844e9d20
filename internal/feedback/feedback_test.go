package feedback

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/registry"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

var at = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func testConfig() config.FeedbackConfig {
	cfg := config.Default().Feedback
	cfg.Enabled = true
	cfg.SearchEndpoint = "https://search.example/api?q={query}"
	cfg.MaxSourcesPerCycle = 3
	return cfg
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)
	require.NoError(t, q.Push(ctx, Term{Text: "a"}))
	require.NoError(t, q.Push(ctx, Term{Text: "b"}))
	assert.ErrorIs(t, q.Push(ctx, Term{Text: "c"}), ErrQueueFull)

	got, err := q.Drain(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Text)

	got, err = q.Drain(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Text)
	assert.Zero(t, q.Len())
}

func TestGeneratorRegistersSearchSources(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	reg := registry.New(mem, 5, zaptest.NewLogger(t))
	q := NewMemoryQueue(16)
	g := NewGenerator(q, reg, testConfig(), metrics.New(), zaptest.NewLogger(t))

	forces := model.NamedEntity{CanonicalName: "Forces X", Type: model.EntityMilitaryUnit, Mentions: 2, LastSeen: at}
	g.ObserveEntity(ctx, forces)
	assert.Zero(t, q.Len(), "not confirmed yet")
	forces.Mentions = 3
	g.ObserveEntity(ctx, forces)
	forces.Mentions = 4
	g.ObserveEntity(ctx, forces)
	assert.Equal(t, 1, q.Len(), "queued once, when the threshold is reached")

	g.ObserveEntity(ctx, model.NamedEntity{CanonicalName: "HIMARS", Type: model.EntityWeapon, Mentions: 3})
	g.ObserveZone(ctx, model.ZoneScore{Zone: model.ZoneKey{Country: "UA", Region: "Kharkiv"}, Score: 4, CalculatedAt: at}, true)
	g.ObserveZone(ctx, model.ZoneScore{Zone: model.ZoneKey{Country: "UA", Region: "Kherson"}, Score: 4}, false)
	require.Equal(t, 2, q.Len())

	added, err := g.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Zero(t, q.Len())

	srcs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	queries := []string{srcs[0].Query, srcs[1].Query}
	assert.ElementsMatch(t, []string{`"Forces X" conflict`, "Kharkiv attack OR strike OR shelling"}, queries)
	for _, s := range srcs {
		assert.Equal(t, model.KindSearch, s.Kind)
		assert.Equal(t, registry.OriginFeedback, s.Origin)
		assert.Equal(t, SourceID(s.Query), s.ID)
	}

	// the same term again registers nothing new
	forces.Mentions = 3
	g.ObserveEntity(ctx, forces)
	added, err = g.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestDrainRespectsPerCycleCap(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory(), 5, zaptest.NewLogger(t))
	q := NewMemoryQueue(16)
	g := NewGenerator(q, reg, testConfig(), nil, zaptest.NewLogger(t))
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, q.Push(ctx, Term{Kind: KindEntity, Text: name, EntityType: model.EntityOrganization}))
	}
	added, err := g.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 2, q.Len())
}

func TestQuery(t *testing.T) {
	assert.Equal(t, `"Valery Gerasimov" military`,
		Query(Term{Kind: KindEntity, Text: "Valery  Gerasimov", EntityType: model.EntityPerson}))
	assert.Equal(t, "Izium attack OR strike OR shelling", Query(Term{Kind: KindEntity, Text: "Izium", EntityType: model.EntityLocation}))
	assert.Equal(t, SourceID("X"), SourceID("x"))
}

func TestOpen(t *testing.T) {
	q, err := Open(config.FeedbackConfig{Backend: "memory", Capacity: 4})
	require.NoError(t, err)
	assert.IsType(t, &MemoryQueue{}, q)

	_, err = Open(config.FeedbackConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = Open(config.FeedbackConfig{Backend: "redis", RedisURL: "::not a url"})
	assert.Error(t, err)
}

// TestRedisQueue requires a running Redis; ARGOS_TEST_REDIS overrides the
// default localhost address.
func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("ARGOS_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available")
	}
	key := "argos:test:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key); client.Close() })
	client.Del(ctx, key)

	q := NewRedisQueueWithClient(client, key)
	require.NoError(t, q.Push(ctx, Term{Kind: KindZone, Text: "Kharkiv", Zone: "UA/Kharkiv", At: at}))
	require.NoError(t, q.Push(ctx, Term{Kind: KindEntity, Text: "Forces X"}))
	client.RPush(ctx, key, "not json")

	got, err := q.Drain(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Kharkiv", got[0].Text)
	assert.True(t, at.Equal(got[0].At))
	assert.Equal(t, "Forces X", got[1].Text)

	got, err = q.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
