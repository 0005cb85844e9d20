// Package entity normalizes actor, target, location and weapon names into
// canonical entities and links them to events.
package entity

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/keylock"
	"github.com/steliosspap/Argos-public-sub005/internal/metrics"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

type Registry struct {
	store   store.EntityStore
	norm    *Normalizer
	locks   *keylock.Locker
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(st store.EntityStore, cfg config.EntityConfig, m *metrics.Metrics, log *zap.Logger) *Registry {
	return &Registry{
		store:   st,
		norm:    NewNormalizer(cfg.Aliases),
		locks:   keylock.New(),
		metrics: m,
		log:     log.Named("entity"),
	}
}

// Normalizer exposes the configured normalizer.
func (r *Registry) Normalizer() *Normalizer { return r.norm }

// Resolve upserts every entity the event mentions and returns one link per
// role, see Record and Links.
func (r *Registry) Resolve(ctx context.Context, ev model.Event) ([]model.EntityLink, []model.NamedEntity, error) {
	entities, err := r.Record(ctx, ev)
	if err != nil {
		return nil, nil, err
	}
	return r.Links(ev), entities, nil
}

type mention struct {
	model.Mention
	key string
}

func (r *Registry) mentions(ev model.Event) []mention {
	var out []mention
	for _, m := range Mentions(ev) {
		if key := r.norm.Key(m.Name, m.Type); key != "" {
			out = append(out, mention{Mention: m, key: key})
		}
	}
	return out
}

// Links returns one link per role for the entities ev mentions, without
// touching the store. An entity mentioned twice in the same role is linked
// once.
func (r *Registry) Links(ev model.Event) []model.EntityLink {
	var links []model.EntityLink
	linked := map[model.EntityLink]bool{}
	for _, m := range r.mentions(ev) {
		l := model.EntityLink{EntityID: store.EntityID(m.Type, m.key), EventID: ev.ID, Role: m.Role}
		if !linked[l] {
			linked[l] = true
			links = append(links, l)
		}
	}
	return links
}

// Record upserts every entity ev mentions, counting one mention per entity,
// and returns the stored rows. Call it once the event itself is saved.
func (r *Registry) Record(ctx context.Context, ev model.Event) ([]model.NamedEntity, error) {
	seen := ev.EstimatedAt
	if seen.IsZero() {
		seen = ev.CreatedAt
	}
	if seen.IsZero() {
		seen = time.Now().UTC()
	}

	var entities []model.NamedEntity
	done := map[string]bool{}
	for _, m := range r.mentions(ev) {
		lockKey := string(m.Type) + "|" + m.key
		if done[lockKey] {
			continue
		}
		done[lockKey] = true
		stored, err := r.upsert(ctx, lockKey, model.NamedEntity{
			ID:            store.EntityID(m.Type, m.key),
			CanonicalName: r.norm.DisplayName(m.Name, m.Type),
			Type:          m.Type,
			Key:           m.key,
			Aliases:       []string{m.Name},
			FirstSeen:     seen,
			LastSeen:      seen,
			Mentions:      1,
		})
		if err != nil {
			return nil, err
		}
		entities = append(entities, stored)
	}
	return entities, nil
}

func (r *Registry) upsert(ctx context.Context, lockKey string, e model.NamedEntity) (model.NamedEntity, error) {
	unlock := r.locks.Lock(lockKey)
	defer unlock()

	stored, created, err := r.store.GetOrCreateEntity(ctx, e)
	if err != nil {
		return model.NamedEntity{}, eris.Wrapf(err, "upsert entity %s", lockKey)
	}
	r.metrics.EntityUpsert(string(e.Type), created)
	if created {
		r.log.Debug("new entity", zap.String("type", string(e.Type)), zap.String("key", e.Key), zap.String("name", e.CanonicalName))
	}
	return stored, nil
}
