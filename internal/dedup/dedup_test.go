package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Forces  X\n\tlaunched strikes ", "forces x launched strikes"},
		{"<p>Strike on <b>Kharkiv</b></p><script>var x=1</script>", "strike on kharkiv"},
		{"Tom &amp; Jerry", "tom & jerry"},
		{"ﬁve killed", "five killed"}, // NFKC folds the ligature
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonicalize(tt.in), tt.in)
	}
	assert.Equal(t, Hash("<p>A  b</p>"), Hash("a B"))
}

func TestURLKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.Example.com/world/story/?utm_source=x&b=2&a=1#top", "example.com/world/story?a=1&b=2"},
		{"http://example.com/world/story", "example.com/world/story"},
		{"https://example.com:8443/a?fbclid=zz", "example.com:8443/a"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URLKey(tt.in), tt.in)
	}
}

func newTestDedup(now time.Time, ttl time.Duration) (*Deduplicator, *store.Memory, *time.Time) {
	clock := now
	st := store.NewMemory()
	d := newWithClock(st, config.DedupConfig{TTL: ttl, MaxKeys: 100}, func() time.Time { return clock })
	return d, st, &clock
}

func TestAdmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d, st, _ := newTestDedup(now, 168*time.Hour)

	doc := model.Document{SourceID: "s1", URL: "https://news.example/a?utm_medium=rss", Text: "Forces X launched strikes."}
	first, err := d.Admit(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, first.Status)
	assert.NotEmpty(t, first.Document.ID)

	second, err := d.Admit(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.Document.ID, second.Document.ID)

	// same body behind different markup and URL decoration
	third, err := d.Admit(ctx, model.Document{SourceID: "s2", URL: "https://mirror.example/b", Text: "<p>Forces  X launched strikes.</p>"})
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, third.Status)
	assert.Equal(t, first.Document.ID, third.Document.ID)

	got, err := st.FindDocumentByHash(ctx, first.Document.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, first.Document.ID, got.ID)
}

func TestAdmitVersionsChangedContent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d, _, clock := newTestDedup(now, 48*time.Hour)

	v1, err := d.Admit(ctx, model.Document{URL: "https://news.example/live", Text: "Two killed."})
	require.NoError(t, err)

	*clock = now.Add(time.Hour)
	v2, err := d.Admit(ctx, model.Document{URL: "https://www.news.example/live/", Text: "Five killed."})
	require.NoError(t, err)
	assert.Equal(t, StatusSuperseded, v2.Status)
	assert.Equal(t, v1.Document.ID, v2.Document.Supersedes)
	assert.NotEqual(t, v1.Document.ID, v2.Document.ID)

	// outside the TTL a changed body starts a fresh lineage
	*clock = now.Add(72 * time.Hour)
	v3, err := d.Admit(ctx, model.Document{URL: "https://news.example/live", Text: "Ceasefire holds."})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, v3.Status)
	assert.Empty(t, v3.Document.Supersedes)
}

func TestAdmitRejectsEmptyDocuments(t *testing.T) {
	d, _, _ := newTestDedup(time.Now(), time.Hour)
	for _, text := range []string{"", "   ", "<div><script>x()</script></div>"} {
		_, err := d.Admit(context.Background(), model.Document{URL: "https://x", Text: text})
		assert.ErrorIs(t, err, ErrInvalidDocument, text)
	}
}

func TestRecentCacheExpiresAndEvicts(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	r := newRecent(2, time.Minute, func() time.Time { return clock })

	r.Put("a", "1")
	r.Put("b", "2")
	r.Put("c", "3")
	_, ok := r.Get("a")
	assert.False(t, ok, "oldest key evicted past capacity")
	assert.Equal(t, 2, r.Len())

	id, ok := r.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", id)

	clock = now.Add(2 * time.Minute)
	_, ok = r.Get("c")
	assert.False(t, ok)
}
