// Package registry owns content sources and their health. Sources are never
// deleted: repeated failures deactivate them until an operator reactivates them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/keylock"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

const (
	OriginConfig   = "config"
	OriginFeedback = "feedback"
)

type Registry struct {
	store     store.SourceStore
	threshold int
	locks     *keylock.Locker
	log       *zap.Logger
}

func New(st store.SourceStore, failureThreshold int, log *zap.Logger) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &Registry{store: st, threshold: failureThreshold, locks: keylock.New(), log: log.Named("registry")}
}

// Seed upserts configured sources. Descriptive fields follow the config;
// health counters and the active flag of known sources are kept.
func (r *Registry) Seed(ctx context.Context, sources []config.SourceConfig) error {
	for _, sc := range sources {
		unlock := r.locks.Lock(sc.ID)
		cur, err := r.store.GetSource(ctx, sc.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			cur = model.Source{ID: sc.ID, Active: true, Origin: OriginConfig}
		case err != nil:
			unlock()
			return eris.Wrapf(err, "load source %s", sc.ID)
		}
		cur.Name = sc.Name
		cur.Kind = model.SourceKind(sc.Kind)
		cur.Endpoint = sc.Endpoint
		cur.Query = sc.Query
		cur.Category = sc.Category
		cur.Reliability = sc.Reliability
		cur.Bias = sc.Bias
		cur.FetchInterval = sc.Interval
		err = r.store.SaveSource(ctx, cur)
		unlock()
		if err != nil {
			return err
		}
		r.log.Debug("source registered", zap.String("source", sc.ID), zap.String("kind", sc.Kind), zap.Bool("active", cur.Active))
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (model.Source, error) {
	return r.store.GetSource(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]model.Source, error) {
	return r.store.ListSources(ctx)
}

// Due lists active sources whose minimum fetch interval has elapsed.
func (r *Registry) Due(ctx context.Context, now time.Time) ([]model.Source, error) {
	all, err := r.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Source
	for _, s := range all {
		if s.Due(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// RecordSuccess resets the failure counter after a completed attempt.
func (r *Registry) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(s *model.Source) {
		s.LastAttemptAt = at
		s.LastSuccessAt = at
		s.ConsecutiveFailures = 0
		s.LastError = ""
	})
}

// RecordFailure counts a failed attempt and reports whether it deactivated the source.
func (r *Registry) RecordFailure(ctx context.Context, id string, at time.Time, cause error) (deactivated bool, err error) {
	err = r.update(ctx, id, func(s *model.Source) {
		s.LastAttemptAt = at
		s.LastFailureAt = at
		s.ConsecutiveFailures++
		if cause != nil {
			s.LastError = cause.Error()
		}
		if s.Active && s.ConsecutiveFailures >= r.threshold {
			s.Active = false
			deactivated = true
		}
	})
	if deactivated {
		r.log.Warn("source deactivated", zap.String("source", id), zap.Int("threshold", r.threshold), zap.Error(cause))
	}
	return deactivated, err
}

// Reactivate puts a deactivated source back into rotation with a clean counter.
func (r *Registry) Reactivate(ctx context.Context, id string) (model.Source, error) {
	var out model.Source
	err := r.update(ctx, id, func(s *model.Source) {
		s.Active = true
		s.ConsecutiveFailures = 0
		s.LastError = ""
		out = *s
	})
	if err == nil {
		r.log.Info("source reactivated", zap.String("source", id))
	}
	return out, err
}

// AddQuerySource registers a search source derived from the feedback loop.
// It is a no-op when a source with the same id already exists.
func (r *Registry) AddQuerySource(ctx context.Context, id, endpoint, query string, interval time.Duration) (created bool, err error) {
	unlock := r.locks.Lock(id)
	defer unlock()
	if _, err := r.store.GetSource(ctx, id); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	s := model.Source{
		ID:            id,
		Name:          fmt.Sprintf("search: %s", query),
		Kind:          model.KindSearch,
		Endpoint:      endpoint,
		Query:         query,
		Category:      "discovery",
		Reliability:   40,
		FetchInterval: interval,
		Origin:        OriginFeedback,
		Active:        true,
	}
	if err := r.store.SaveSource(ctx, s); err != nil {
		return false, err
	}
	r.log.Info("feedback source added", zap.String("source", id), zap.String("query", query))
	return true, nil
}

func (r *Registry) update(ctx context.Context, id string, fn func(*model.Source)) error {
	unlock := r.locks.Lock(id)
	defer unlock()
	s, err := r.store.GetSource(ctx, id)
	if err != nil {
		return err
	}
	fn(&s)
	return r.store.SaveSource(ctx, s)
}
