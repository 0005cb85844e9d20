package publish

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/sink"
)

// Publisher hands each batch to the hub and, concurrently, to every sink.
type Publisher struct {
	hub     *Hub
	sinks   []sink.Sink
	timeout time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewPublisher(h *Hub, sinks []sink.Sink, m *metrics.Metrics, log *zap.Logger) *Publisher {
	return &Publisher{hub: h, sinks: sinks, timeout: 15 * time.Second, metrics: m, log: log.Named("publish")}
}

func (p *Publisher) Hub() *Hub { return p.hub }

// Publish never fails the caller: sink errors are logged and counted, and
// the first one is returned for information.
func (p *Publisher) Publish(ctx context.Context, b sink.Batch) error {
	if b.Empty() {
		return nil
	}
	if p.hub != nil {
		p.hub.BroadcastBatch(b)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var g errgroup.Group
	for _, s := range p.sinks {
		g.Go(func() error {
			if err := s.Push(ctx, b); err != nil {
				p.metrics.SinkError(s.Name())
				p.log.Warn("sink push failed", zap.String("sink", s.Name()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
