package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/registry"
	"github.com/steliosspap/Argos-public-sub005/internal/source"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
	fn       func(ctx context.Context, src model.Source, call int) ([]source.Item, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, src model.Source) ([]source.Item, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[src.ID]++
	call := f.calls[src.ID]
	f.mu.Unlock()
	return f.fn(ctx, src, call)
}

func testConfig() config.FetchConfig {
	return config.FetchConfig{
		Concurrency: 2, QueueSize: 4, Timeout: 50 * time.Millisecond,
		MaxRetries: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond,
	}
}

func newRegistry(t *testing.T, threshold int, ids ...string) *registry.Registry {
	t.Helper()
	r := registry.New(store.NewMemory(), threshold, zaptest.NewLogger(t))
	var cfgs []config.SourceConfig
	for _, id := range ids {
		cfgs = append(cfgs, config.SourceConfig{ID: id, Name: id, Kind: "feed", Endpoint: "http://" + id})
	}
	require.NoError(t, r.Seed(context.Background(), cfgs))
	return r
}

func collect(t *testing.T, p *Pool, srcs []model.Source) map[string]Result {
	t.Helper()
	var mu sync.Mutex
	out := map[string]Result{}
	err := p.Run(context.Background(), srcs, func(_ context.Context, r Result) {
		mu.Lock()
		out[r.Source.ID] = r
		mu.Unlock()
	})
	require.NoError(t, err)
	return out
}

func TestPoolRespectsConcurrencyCap(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	reg := newRegistry(t, 5, ids...)
	f := &fakeFetcher{fn: func(ctx context.Context, src model.Source, _ int) ([]source.Item, error) {
		time.Sleep(5 * time.Millisecond)
		return []source.Item{{URL: "http://" + src.ID + "/1", Text: "x"}}, nil
	}}
	p := NewPool(f, reg, testConfig(), nil, zaptest.NewLogger(t))

	srcs, err := reg.Due(context.Background(), time.Now())
	require.NoError(t, err)
	res := collect(t, p, srcs)
	assert.Len(t, res, len(ids))
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	for _, r := range res {
		assert.Nil(t, r.Err)
		assert.Len(t, r.Items, 1)
	}
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	reg := newRegistry(t, 5, "flaky", "broken", "limited")
	f := &fakeFetcher{fn: func(ctx context.Context, src model.Source, call int) ([]source.Item, error) {
		switch src.ID {
		case "flaky":
			if call < 3 {
				return nil, &source.StatusError{Code: http.StatusBadGateway}
			}
			return []source.Item{{Text: "ok"}}, nil
		case "broken":
			return nil, fmt.Errorf("%w: bad xml", source.ErrParse)
		default:
			return nil, &source.StatusError{Code: http.StatusTooManyRequests}
		}
	}}
	p := NewPool(f, reg, testConfig(), nil, zaptest.NewLogger(t))
	srcs, err := reg.List(context.Background())
	require.NoError(t, err)
	res := collect(t, p, srcs)

	assert.Nil(t, res["flaky"].Err)
	assert.Equal(t, 3, res["flaky"].Attempts)

	require.NotNil(t, res["broken"].Err)
	assert.Equal(t, KindParse, res["broken"].Err.Kind)
	assert.Equal(t, 1, res["broken"].Attempts, "parse errors are not retried")

	require.NotNil(t, res["limited"].Err)
	assert.Equal(t, KindRateLimited, res["limited"].Err.Kind)
	assert.Equal(t, 3, res["limited"].Attempts)

	s, err := reg.Get(context.Background(), "limited")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ConsecutiveFailures)
}

func TestPoolTimesOutStuckFetches(t *testing.T) {
	reg := newRegistry(t, 1, "stuck")
	f := &fakeFetcher{fn: func(ctx context.Context, _ model.Source, _ int) ([]source.Item, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.MaxRetries = 2
	p := NewPool(f, reg, cfg, nil, zaptest.NewLogger(t))
	srcs, _ := reg.List(context.Background())

	start := time.Now()
	res := collect(t, p, srcs)
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, res["stuck"].Err)
	assert.Equal(t, KindTimeout, res["stuck"].Err.Kind)

	s, err := reg.Get(context.Background(), "stuck")
	require.NoError(t, err)
	assert.False(t, s.Active, "threshold 1 deactivates after one failed attempt")
}

func TestPoolPacesRepeatedFetches(t *testing.T) {
	reg := newRegistry(t, 5, "wire")
	f := &fakeFetcher{fn: func(context.Context, model.Source, int) ([]source.Item, error) { return nil, nil }}
	p := NewPool(f, reg, testConfig(), nil, zaptest.NewLogger(t))
	src := model.Source{ID: "wire", Active: true, FetchInterval: time.Hour}

	first := collect(t, p, []model.Source{src})
	assert.False(t, first["wire"].Skipped)
	second := collect(t, p, []model.Source{src})
	assert.True(t, second["wire"].Skipped)
}

func TestPoolStopsSchedulingOnCancel(t *testing.T) {
	reg := newRegistry(t, 5, "a")
	ctx, cancel := context.WithCancel(context.Background())
	var handled atomic.Int32
	f := &fakeFetcher{fn: func(context.Context, model.Source, int) ([]source.Item, error) {
		cancel()
		return nil, nil
	}}
	cfg := testConfig()
	cfg.Concurrency = 1
	cfg.QueueSize = 1
	p := NewPool(f, reg, cfg, nil, zaptest.NewLogger(t))
	srcs := make([]model.Source, 10)
	for i := range srcs {
		srcs[i] = model.Source{ID: "a", Active: true}
	}
	err := p.Run(ctx, srcs, func(context.Context, Result) { handled.Add(1) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, handled.Load(), int32(10))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify("s", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindRateLimited, Classify("s", &source.StatusError{Code: 429}).Kind)
	assert.Equal(t, KindUnreachable, Classify("s", &source.StatusError{Code: 404}).Kind)
	assert.False(t, Classify("s", &source.StatusError{Code: 404}).Transient())
	assert.True(t, Classify("s", &source.StatusError{Code: 503}).Transient())
	assert.Equal(t, KindParse, Classify("s", fmt.Errorf("%w: x", source.ErrParse)).Kind)
	assert.Equal(t, KindUnreachable, Classify("s", errors.New("connection refused")).Kind)
	assert.Nil(t, Classify("s", nil))
}
