// Package fetch runs fetch attempts for many sources under a global
// concurrency cap, with per-source pacing, timeouts and bounded retries.
package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/source"
	"github.com/steliosspap/Argos-public-sub005/internal/util"
)

// Fetcher performs one raw fetch. source.Set satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) ([]source.Item, error)
}

// Health receives the outcome of every attempt.
type Health interface {
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, at time.Time, cause error) (bool, error)
}

type Result struct {
	Source   model.Source
	Items    []source.Item
	Err      *Error
	Attempts int
	Skipped  bool // paced out: the source was fetched too recently
}

type Pool struct {
	fetcher Fetcher
	health  Health
	cfg     config.FetchConfig
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiter
}

type limiter struct {
	every time.Duration
	lim   *rate.Limiter
}

func NewPool(f Fetcher, h Health, cfg config.FetchConfig, m *metrics.Metrics, log *zap.Logger) *Pool {
	return &Pool{
		fetcher:  f,
		health:   h,
		cfg:      cfg,
		metrics:  m,
		log:      log.Named("fetch"),
		now:      time.Now,
		limiters: map[string]*limiter{},
	}
}

// Run feeds sources through a bounded queue to the workers and calls handle
// once per dequeued source, from the worker goroutine. Cancelling ctx stops
// scheduling; queued sources that were not started are dropped.
func (p *Pool) Run(ctx context.Context, sources []model.Source, handle func(context.Context, Result)) error {
	if len(sources) == 0 {
		return nil
	}
	workers := p.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, len(sources))
	queue := p.cfg.QueueSize
	if queue <= 0 {
		queue = workers
	}

	jobs := make(chan model.Source, queue)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for src := range jobs {
				if ctx.Err() != nil {
					continue
				}
				handle(ctx, p.fetchOne(ctx, src))
			}
			return nil
		})
	}

feed:
	for _, src := range sources {
		select {
		case jobs <- src:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	_ = g.Wait()
	return ctx.Err()
}

func (p *Pool) allow(src model.Source) bool {
	every := src.FetchInterval
	if every <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[src.ID]
	if !ok || l.every != every {
		l = &limiter{every: every, lim: rate.NewLimiter(rate.Every(every), 1)}
		p.limiters[src.ID] = l
	}
	return l.lim.AllowN(p.now(), 1)
}

func (p *Pool) fetchOne(ctx context.Context, src model.Source) Result {
	res := Result{Source: src}
	if !p.allow(src) {
		res.Skipped = true
		p.log.Debug("source paced out", zap.String("source", src.ID), zap.Duration("interval", src.FetchInterval))
		return res
	}

	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryable := func(err error) bool {
		var fe *Error
		return errors.As(err, &fe) && fe.Transient()
	}
	err := util.RetryIf(ctx, max(1, p.cfg.MaxRetries), p.cfg.Backoff, p.cfg.MaxBackoff, retryable, func() error {
		res.Attempts++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		items, err := p.fetcher.Fetch(actx, src)
		if err != nil {
			return Classify(src.ID, err)
		}
		res.Items = items
		return nil
	})

	at := p.now().UTC()
	if err == nil {
		p.metrics.Fetch(src.ID, "ok")
		if herr := p.health.RecordSuccess(ctx, src.ID, at); herr != nil {
			p.log.Warn("record success", zap.String("source", src.ID), zap.Error(herr))
		}
		p.log.Debug("fetched", zap.String("source", src.ID), zap.Int("items", len(res.Items)), zap.Int("attempts", res.Attempts))
		return res
	}

	if ctx.Err() != nil {
		// shutting down; not the source's fault
		res.Err = &Error{Kind: KindTimeout, Source: src.ID, Err: ctx.Err()}
		return res
	}
	res.Err = Classify(src.ID, err)
	p.metrics.Fetch(src.ID, string(res.Err.Kind))
	deactivated, herr := p.health.RecordFailure(context.WithoutCancel(ctx), src.ID, at, res.Err)
	if herr != nil {
		p.log.Warn("record failure", zap.String("source", src.ID), zap.Error(herr))
	}
	p.log.Warn("fetch failed",
		zap.String("source", src.ID),
		zap.String("kind", string(res.Err.Kind)),
		zap.Int("attempts", res.Attempts),
		zap.Bool("deactivated", deactivated),
		zap.Error(res.Err.Err))
	return res
}
