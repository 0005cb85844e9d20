package group

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

var (
	t0      = time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC)
	kharkiv = model.ZoneKey{Country: "UA", Region: "Kharkiv"}
)

func newGrouper(t *testing.T) (*Grouper, *store.Memory) {
	mem := store.NewMemory()
	g := New(mem, config.Default().Grouping, metrics.New(), zaptest.NewLogger(t))
	g.now = func() time.Time { return t0.Add(12 * time.Hour) }
	return g, mem
}

func strike(id, source string, at time.Time, span string) model.Event {
	z := kharkiv
	return model.Event{
		ID:           id,
		DocumentID:   "doc-" + id,
		SourceID:     source,
		Actor:        "Forces X",
		Action:       "strike",
		Target:       "ammunition depot",
		LocationText: "Kharkiv",
		Zone:         &z,
		Category:     "military",
		EstimatedAt:  at,
		Confidence:   0.9,
		Span:         span,
	}
}

// save stores ev the way the pipeline does before grouping.
func save(t *testing.T, mem *store.Memory, ev model.Event) model.Event {
	_, err := mem.SaveEventWithLinks(context.Background(), ev, nil)
	require.NoError(t, err)
	return ev
}

func TestSimilarity(t *testing.T) {
	w := config.Default().Grouping.Weights
	a := strike("a", "s1", t0, "Forces X struck an ammunition depot in Kharkiv overnight")
	b := strike("b", "s2", t0.Add(90*time.Minute), "Forces X hit the Kharkiv ammunition depot, officials said")

	same := Similarity(a, b, 6*time.Hour, w)
	assert.Greater(t, same, 0.7)
	assert.InDelta(t, same, Similarity(b, a, 6*time.Hour, w), 1e-12, "symmetric")
	assert.InDelta(t, 1.0, Similarity(a, a, 6*time.Hour, w), 1e-9)

	far := b
	far.EstimatedAt = t0.Add(7 * time.Hour)
	assert.Zero(t, Similarity(a, far, 6*time.Hour, w), "outside the window")

	other := b
	other.Actor, other.Action, other.Category, other.LocationText = "Rebels", "abduction", "violence", "Izium"
	other.Span = "Rebels abducted two aid workers near Izium"
	assert.Less(t, Similarity(a, other, 6*time.Hour, w), 0.5)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine(Embed("drone strike Kharkiv"), Embed("Kharkiv drone strike")), 1e-9)
	assert.Zero(t, Cosine(Embed(""), Embed("anything")))
	assert.Less(t, Cosine(Embed("drone strike on Kharkiv"), Embed("ceasefire talks in Geneva")), 0.2)
}

func TestTwoSourceCorroboration(t *testing.T) {
	ctx := context.Background()
	g, mem := newGrouper(t)

	a := save(t, mem, strike("a", "reuters", t0, "Forces X struck an ammunition depot in Kharkiv overnight"))
	b := strike("b", "kyiv-independent", t0.Add(2*time.Hour), "Forces X hit an ammunition depot in Kharkiv, the governor said")
	b.AttributionText = "the governor"
	b.Coordinates = &model.LatLon{Lat: 49.99, Lon: 36.23}
	save(t, mem, b)

	first, outcome, err := g.Assign(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)
	assert.Equal(t, 1, first.CorroborationCount)
	assert.Equal(t, "a", first.PrimaryEventID)

	grp, outcome, err := g.Assign(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, Attached, outcome)
	assert.Equal(t, first.ID, grp.ID)
	assert.Equal(t, 2, grp.CorroborationCount)
	assert.Equal(t, 1.0, grp.SourceDiversity)
	assert.Equal(t, []string{"a", "b"}, grp.MemberIDs)
	assert.Equal(t, []string{"kyiv-independent", "reuters"}, grp.SourceIDs)
	assert.Equal(t, "b", grp.PrimaryEventID, "the more detailed report leads")
	assert.False(t, grp.Disputed)
	assert.Greater(t, grp.Confidence, first.Confidence)

	stored, err := mem.GetGroup(ctx, grp.ID)
	require.NoError(t, err)
	assert.Equal(t, grp.MemberIDs, stored.MemberIDs)
}

func TestAssignIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g, mem := newGrouper(t)
	a := save(t, mem, strike("a", "s1", t0, "Forces X struck a depot in Kharkiv"))

	first, _, err := g.Assign(ctx, a)
	require.NoError(t, err)
	again, outcome, err := g.Assign(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, Existing, outcome)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, again.CorroborationCount)
}

func TestMembersAreNeverRemoved(t *testing.T) {
	ctx := context.Background()
	g, mem := newGrouper(t)

	var (
		groupID string
		members []string
	)
	for i := 0; i < 6; i++ {
		ev := strike(fmt.Sprintf("e%d", i), fmt.Sprintf("s%d", i%2), t0.Add(time.Duration(i)*20*time.Minute),
			"Forces X struck an ammunition depot in Kharkiv")
		if i == 3 {
			ev.Killed = 40
		}
		save(t, mem, ev)
		grp, _, err := g.Assign(ctx, ev)
		require.NoError(t, err)
		if groupID == "" {
			groupID = grp.ID
		}
		require.Equal(t, groupID, grp.ID)
		for _, m := range members {
			assert.True(t, grp.HasMember(m), "member %s dropped", m)
		}
		assert.True(t, grp.HasMember(grp.PrimaryEventID))
		members = grp.MemberIDs
	}
	assert.Len(t, members, 6)
}

func TestDisputes(t *testing.T) {
	ctx := context.Background()
	g, mem := newGrouper(t)

	a := strike("a", "s1", t0, "Forces X struck an ammunition depot in Kharkiv, killing 4")
	a.Killed = 4
	b := strike("b", "s2", t0.Add(time.Hour), "An ammunition depot in Kharkiv was struck, killing 12")
	b.Actor, b.Killed = "Forces Z", 12
	save(t, mem, a)
	save(t, mem, b)

	_, _, err := g.Assign(ctx, a)
	require.NoError(t, err)
	grp, outcome, err := g.Assign(ctx, b)
	require.NoError(t, err)
	require.Equal(t, Attached, outcome)
	assert.True(t, grp.Disputed)
	assert.Len(t, grp.DisputeReasons, 2)
	assert.Contains(t, grp.DisputeReasons[0], "4 vs 12")
	assert.Contains(t, grp.DisputeReasons[1], "Forces X vs Forces Z")

	undisputed := model.EventGroup{}
	summarize(&undisputed, []model.Event{a, strike("c", "s2", t0, "")})
	assert.Less(t, grp.Confidence, undisputed.Confidence)
}

func TestSmallCasualtyDifferencesAreNotDisputes(t *testing.T) {
	a, b := strike("a", "s1", t0, ""), strike("b", "s2", t0, "")
	a.Killed, b.Killed = 5, 7
	assert.Empty(t, disputes([]model.Event{a, b}))
}

func TestDifferentZonesNeverGroup(t *testing.T) {
	ctx := context.Background()
	g, mem := newGrouper(t)
	a := save(t, mem, strike("a", "s1", t0, "Forces X struck a depot"))
	b := strike("b", "s2", t0, "Forces X struck a depot")
	other := model.ZoneKey{Country: "UA", Region: "Kherson"}
	b.Zone = &other
	save(t, mem, b)

	ga, _, err := g.Assign(ctx, a)
	require.NoError(t, err)
	gb, outcome, err := g.Assign(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)
	assert.NotEqual(t, ga.ID, gb.ID)
}
