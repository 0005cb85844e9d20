package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/keylock"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

// Store is the slice of the persistence contract the engine reads and writes.
type Store interface {
	store.EventStore
	store.ZoneStore
}

type Engine struct {
	store   Store
	cfg     config.EscalationConfig
	locks   *keylock.Locker
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(st Store, cfg config.EscalationConfig, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{store: st, cfg: cfg, locks: keylock.New(), metrics: m, log: log.Named("escalation")}
}

// An event is counted once: when it was created after the newest event
// already counted, or up to lateArrival before it and missing from the
// counted ring. Writers running in parallel save slightly out of order.
const lateArrival = time.Minute

func createdAt(ev model.Event) time.Time {
	if ev.CreatedAt.IsZero() {
		return ev.EstimatedAt
	}
	return ev.CreatedAt
}

// Recompute refreshes the score of one zone as of now. Recomputes of the same
// zone are serialized; different zones run in parallel. Running it twice with
// no new events in between changes nothing but decay.
func (e *Engine) Recompute(ctx context.Context, zone model.ZoneKey, now time.Time) (model.ZoneScore, error) {
	unlock := e.locks.Lock(zone.String())
	defer unlock()

	prev, err := e.store.GetZoneScore(ctx, zone)
	hasPrev := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.ZoneScore{}, eris.Wrapf(err, "load score %s", zone)
	}
	if hasPrev && prev.Level == 0 {
		prev.Level, prev.AnchoredAt = float64(prev.Score), prev.CalculatedAt
	}

	events, err := e.store.ListEventsByZone(ctx, zone, now.Add(-e.cfg.Window))
	if err != nil {
		return model.ZoneScore{}, eris.Wrapf(err, "list events %s", zone)
	}
	counted := make(map[string]bool, len(prev.CountedEventIDs))
	for _, id := range prev.CountedEventIDs {
		counted[id] = true
	}
	var (
		fresh   []string
		sum     float64
		mark    = prev.CountedThrough
		pending time.Time
	)
	for _, ev := range events {
		created := createdAt(ev)
		if counted[ev.ID] || (!prev.CountedThrough.IsZero() && created.Before(prev.CountedThrough.Add(-lateArrival))) {
			continue
		}
		if ev.EstimatedAt.After(now) {
			if pending.IsZero() || created.Before(pending) {
				pending = created
			}
			continue
		}
		if e.cfg.ExcludeUnlocated && ev.NeedsLocation() {
			continue
		}
		fresh = append(fresh, ev.ID)
		sum += float64(ev.Contribution)
		if created.After(mark) {
			mark = created
		}
	}
	// Events dated in the future are counted once their time comes.
	if !pending.IsZero() && mark.After(pending.Add(lateArrival)) {
		mark = pending.Add(lateArrival)
	}

	next := model.ZoneScore{
		Zone:            zone,
		PreviousScore:   prev.Score,
		CalculatedAt:    now,
		CountedEventIDs: prev.CountedEventIDs,
		CountedThrough:  mark,
		EventCount:      prev.EventCount,
		Level:           prev.Level,
		AnchoredAt:      prev.AnchoredAt,
	}
	switch {
	case len(fresh) > 0:
		incoming := sum / float64(len(fresh))
		level := incoming
		if hasPrev {
			decayed := Decay(prev.Level, now.Sub(prev.AnchoredAt), e.cfg.DecayWindow, e.cfg.DecayRatePerHour)
			level = Blend(decayed, incoming, e.cfg.RiseWeight, e.cfg.FallWeight)
		}
		next.Level = model.Clamp(level, model.MinScore, model.MaxScore)
		next.AnchoredAt = now
		next.Score = Round(next.Level)
		next.CountedEventIDs = ring(prev.CountedEventIDs, fresh, e.cfg.HistorySize)
		next.EventCount += len(fresh)
	case hasPrev:
		next.Score = Round(Decay(prev.Level, now.Sub(prev.AnchoredAt), e.cfg.DecayWindow, e.cfg.DecayRatePerHour))
	default:
		next.Score, next.Level, next.AnchoredAt = model.MinScore, model.MinScore, now
	}
	if !hasPrev {
		next.PreviousScore = next.Score
	}

	if err := e.store.SaveZoneScore(ctx, next); err != nil {
		return model.ZoneScore{}, eris.Wrapf(err, "save score %s", zone)
	}
	e.metrics.ZoneScore(zone.String(), next.Score)
	if next.Score != prev.Score || len(fresh) > 0 {
		e.log.Info("zone score",
			zap.Stringer("zone", zone),
			zap.Int("score", next.Score),
			zap.Int("previous", next.PreviousScore),
			zap.Int("new_events", len(fresh)))
	}
	return next, nil
}

// RecomputeAll refreshes every zone that already has a score. A failing zone
// is logged and skipped.
func (e *Engine) RecomputeAll(ctx context.Context, now time.Time) ([]model.ZoneScore, error) {
	scores, err := e.store.ListZoneScores(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list zone scores")
	}
	out := make([]model.ZoneScore, 0, len(scores))
	for _, s := range scores {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		next, err := e.Recompute(ctx, s.Zone, now)
		if err != nil {
			e.log.Warn("recompute failed", zap.Stringer("zone", s.Zone), zap.Error(err))
			continue
		}
		out = append(out, next)
	}
	return out, nil
}

// Run recomputes all zones every cfg.Interval until ctx is done, passing each
// batch to publish.
func (e *Engine) Run(ctx context.Context, publish func([]model.ZoneScore)) {
	t := time.NewTicker(e.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			scores, err := e.RecomputeAll(ctx, now.UTC())
			if err != nil && ctx.Err() == nil {
				e.log.Warn("periodic recompute", zap.Error(err))
			}
			if publish != nil && len(scores) > 0 {
				publish(scores)
			}
		}
	}
}
