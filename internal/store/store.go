// Package store is the persistence contract of the pipeline. Every write is an
// atomic insert-if-new or upsert-by-key so that concurrent workers cannot
// create duplicates or lose updates.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

type SourceStore interface {
	SaveSource(ctx context.Context, s model.Source) error
	GetSource(ctx context.Context, id string) (model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
}

type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	FindDocumentByHash(ctx context.Context, hash string) (model.Document, error)
	// LatestDocumentByURLKey returns the most recently retrieved version for a URL key.
	LatestDocumentByURLKey(ctx context.Context, key string) (model.Document, error)
	// InsertDocument inserts d unless a document with the same content hash
	// exists, in which case the existing row is returned with created=false.
	InsertDocument(ctx context.Context, d model.Document) (stored model.Document, created bool, err error)
}

type EventStore interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	// SaveEventWithLinks writes the event and its entity links in one
	// transaction. An existing event id is left untouched (created=false).
	SaveEventWithLinks(ctx context.Context, e model.Event, links []model.EntityLink) (created bool, err error)
	// ListEventsByZone returns events of the zone estimated at or after since, oldest first.
	ListEventsByZone(ctx context.Context, zone model.ZoneKey, since time.Time) ([]model.Event, error)
	ListEventsByDocument(ctx context.Context, documentID string) ([]model.Event, error)
}

type EntityStore interface {
	// GetOrCreateEntity atomically creates the entity keyed by (Key, Type) or
	// bumps Mentions and LastSeen on the existing one, merging aliases.
	GetOrCreateEntity(ctx context.Context, e model.NamedEntity) (stored model.NamedEntity, created bool, err error)
	GetEntity(ctx context.Context, typ model.EntityType, key string) (model.NamedEntity, error)
	ListEntityLinks(ctx context.Context, eventID string) ([]model.EntityLink, error)
}

type GroupStore interface {
	SaveGroup(ctx context.Context, g model.EventGroup) error
	GetGroup(ctx context.Context, id string) (model.EventGroup, error)
	// ListGroups returns groups of the zone anchored at or after since.
	ListGroups(ctx context.Context, zone model.ZoneKey, since time.Time) ([]model.EventGroup, error)
}

type ZoneStore interface {
	GetZoneScore(ctx context.Context, zone model.ZoneKey) (model.ZoneScore, error)
	SaveZoneScore(ctx context.Context, s model.ZoneScore) error
	ListZoneScores(ctx context.Context) ([]model.ZoneScore, error)
}

type Store interface {
	SourceStore
	DocumentStore
	EventStore
	EntityStore
	GroupStore
	ZoneStore
	Close() error
}

// Open builds the store selected by cfg and prepares its tables.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "postgres":
		dialect := SQLite
		driver := "sqlite"
		if cfg.Driver == "postgres" {
			dialect = Postgres
			driver = "postgres"
		}
		db, err := sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", cfg.Driver)
		}
		if dialect == SQLite {
			// one writer at a time; modernc returns SQLITE_BUSY otherwise
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "ping %s", cfg.Driver)
		}
		s := NewSQL(db, dialect)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
