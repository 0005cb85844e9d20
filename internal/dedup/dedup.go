// Package dedup rejects repeated documents and versions changed ones.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/keylock"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
	"github.com/steliosspap/Argos-public-sub005/internal/store"
)

// ErrInvalidDocument is returned for documents with no usable content.
var ErrInvalidDocument = errors.New("dedup: invalid document")

type Status string

const (
	StatusNew        Status = "new"
	StatusDuplicate  Status = "duplicate"
	StatusSuperseded Status = "superseded"
)

type Result struct {
	Document model.Document
	Status   Status
}

// Stored reports whether Admit wrote a new row.
func (r Result) Stored() bool { return r.Status != StatusDuplicate }

var documentNamespace = uuid.MustParse("0b8d7c56-2f4a-4e61-8a3b-5c9e1d7f2a40")

type Deduplicator struct {
	store store.DocumentStore
	ttl   time.Duration
	cache *recent
	locks *keylock.Locker
	now   func() time.Time
}

func New(st store.DocumentStore, cfg config.DedupConfig) *Deduplicator {
	return newWithClock(st, cfg, time.Now)
}

func newWithClock(st store.DocumentStore, cfg config.DedupConfig, now func() time.Time) *Deduplicator {
	return &Deduplicator{
		store: st,
		ttl:   cfg.TTL,
		cache: newRecent(cfg.MaxKeys, cfg.TTL, now),
		locks: keylock.New(),
		now:   now,
	}
}

// Admit stores doc unless it repeats a known document. An identical body is
// always a duplicate and returns the stored document. A new body at a URL seen
// within the TTL is stored as a new version linked through Supersedes.
func (d *Deduplicator) Admit(ctx context.Context, doc model.Document) (Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return Result{}, fmt.Errorf("%w: empty text (url %q)", ErrInvalidDocument, doc.URL)
	}
	canonical := Canonicalize(doc.Text)
	if canonical == "" {
		return Result{}, fmt.Errorf("%w: no text after markup removal (url %q)", ErrInvalidDocument, doc.URL)
	}
	doc.ContentHash = Hash(doc.Text)
	doc.URLKey = URLKey(doc.URL)
	if doc.RetrievedAt.IsZero() {
		doc.RetrievedAt = d.now().UTC()
	}

	if id, ok := d.cache.Get("h:" + doc.ContentHash); ok {
		if existing, err := d.store.GetDocument(ctx, id); err == nil {
			return Result{Document: existing, Status: StatusDuplicate}, nil
		}
	}

	lockKey := doc.URLKey
	if lockKey == "" {
		lockKey = doc.ContentHash
	}
	unlock := d.locks.Lock(lockKey)
	defer unlock()

	existing, err := d.store.FindDocumentByHash(ctx, doc.ContentHash)
	switch {
	case err == nil:
		d.remember(existing)
		return Result{Document: existing, Status: StatusDuplicate}, nil
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, eris.Wrap(err, "lookup content hash")
	}

	status := StatusNew
	doc.Supersedes = ""
	if doc.URLKey != "" {
		prev, err := d.store.LatestDocumentByURLKey(ctx, doc.URLKey)
		switch {
		case err == nil:
			if d.ttl <= 0 || doc.RetrievedAt.Sub(prev.RetrievedAt) <= d.ttl {
				doc.Supersedes = prev.ID
				status = StatusSuperseded
			}
		case !errors.Is(err, store.ErrNotFound):
			return Result{}, eris.Wrap(err, "lookup url key")
		}
	}

	if doc.ID == "" {
		doc.ID = uuid.NewSHA1(documentNamespace, []byte(doc.ContentHash)).String()
	}
	stored, created, err := d.store.InsertDocument(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	d.remember(stored)
	if !created {
		return Result{Document: stored, Status: StatusDuplicate}, nil
	}
	return Result{Document: stored, Status: status}, nil
}

func (d *Deduplicator) remember(doc model.Document) {
	d.cache.Put("h:"+doc.ContentHash, doc.ID)
}
