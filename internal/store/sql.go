package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// Dialect selects placeholder syntax. Everything else in the schema is
// written in the subset SQLite and PostgreSQL share.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// SQL is a Store over database/sql. Times are stored as unix milliseconds;
// nested structures are stored as JSON text next to the columns used for lookup.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

func (s *SQL) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id   TEXT PRIMARY KEY,
		body TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		source_id    TEXT NOT NULL,
		url          TEXT NOT NULL,
		url_key      TEXT NOT NULL,
		title        TEXT NOT NULL,
		body         TEXT NOT NULL,
		retrieved_at BIGINT NOT NULL,
		published_at BIGINT,
		content_hash TEXT NOT NULL UNIQUE,
		supersedes   TEXT NOT NULL,
		language     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS documents_url_key ON documents (url_key, retrieved_at)`,
	`CREATE TABLE IF NOT EXISTS events (
		id           TEXT PRIMARY KEY,
		document_id  TEXT NOT NULL,
		zone         TEXT NOT NULL,
		estimated_at BIGINT NOT NULL,
		body         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_zone_time ON events (zone, estimated_at)`,
	`CREATE INDEX IF NOT EXISTS events_document ON events (document_id)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id             TEXT PRIMARY KEY,
		type           TEXT NOT NULL,
		norm_key       TEXT NOT NULL,
		canonical_name TEXT NOT NULL,
		aliases        TEXT NOT NULL,
		first_seen     BIGINT NOT NULL,
		last_seen      BIGINT NOT NULL,
		mentions       BIGINT NOT NULL,
		UNIQUE (type, norm_key)
	)`,
	`CREATE TABLE IF NOT EXISTS entity_links (
		entity_id TEXT NOT NULL,
		event_id  TEXT NOT NULL,
		role      TEXT NOT NULL,
		PRIMARY KEY (entity_id, event_id, role)
	)`,
	`CREATE TABLE IF NOT EXISTS event_groups (
		id         TEXT PRIMARY KEY,
		zone       TEXT NOT NULL,
		anchor_at  BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		body       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS event_groups_zone ON event_groups (zone, anchor_at)`,
	`CREATE TABLE IF NOT EXISTS zone_scores (
		zone TEXT PRIMARY KEY,
		body TEXT NOT NULL
	)`,
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "migrate")
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (s *SQL) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- sources ---

func (s *SQL) SaveSource(ctx context.Context, src model.Source) error {
	body, err := json.Marshal(src)
	if err != nil {
		return eris.Wrap(err, "encode source")
	}
	_, err = s.exec(ctx, `INSERT INTO sources (id, body) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET body = excluded.body`, src.ID, string(body))
	return eris.Wrapf(err, "save source %s", src.ID)
}

func (s *SQL) GetSource(ctx context.Context, id string) (model.Source, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM sources WHERE id = ?`), id).Scan(&body)
	if err != nil {
		return model.Source{}, notFound(err)
	}
	var src model.Source
	if err := json.Unmarshal([]byte(body), &src); err != nil {
		return model.Source{}, eris.Wrap(err, "decode source")
	}
	return src, nil
}

func (s *SQL) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM sources ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "list sources")
	}
	defer rows.Close()
	var out []model.Source
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var src model.Source
		if err := json.Unmarshal([]byte(body), &src); err != nil {
			return nil, eris.Wrap(err, "decode source")
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// --- documents ---

const documentColumns = `id, source_id, url, url_key, title, body, retrieved_at, published_at, content_hash, supersedes, language`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var (
		d         model.Document
		retrieved int64
		published sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.SourceID, &d.URL, &d.URLKey, &d.Title, &d.Text,
		&retrieved, &published, &d.ContentHash, &d.Supersedes, &d.Language); err != nil {
		return model.Document{}, notFound(err)
	}
	d.RetrievedAt = fromMillis(retrieved)
	if published.Valid {
		t := fromMillis(published.Int64)
		d.PublishedAt = &t
	}
	return d, nil
}

func (s *SQL) GetDocument(ctx context.Context, id string) (model.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+documentColumns+` FROM documents WHERE id = ?`), id))
}

func (s *SQL) FindDocumentByHash(ctx context.Context, hash string) (model.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+documentColumns+` FROM documents WHERE content_hash = ?`), hash))
}

func (s *SQL) LatestDocumentByURLKey(ctx context.Context, key string) (model.Document, error) {
	if key == "" {
		return model.Document{}, ErrNotFound
	}
	return scanDocument(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+documentColumns+` FROM documents WHERE url_key = ?
			ORDER BY retrieved_at DESC LIMIT 1`), key))
}

func (s *SQL) InsertDocument(ctx context.Context, d model.Document) (model.Document, bool, error) {
	var published sql.NullInt64
	if d.PublishedAt != nil {
		published = sql.NullInt64{Int64: toMillis(*d.PublishedAt), Valid: true}
	}
	res, err := s.exec(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		d.ID, d.SourceID, d.URL, d.URLKey, d.Title, d.Text,
		toMillis(d.RetrievedAt), published, d.ContentHash, d.Supersedes, d.Language)
	if err != nil {
		return model.Document{}, false, eris.Wrapf(err, "insert document %s", d.ID)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return d, true, nil
	}
	existing, err := s.FindDocumentByHash(ctx, d.ContentHash)
	if err != nil {
		return model.Document{}, false, eris.Wrapf(err, "load document for hash %s", d.ContentHash)
	}
	return existing, false, nil
}

// --- events ---

func zoneColumn(z *model.ZoneKey) string {
	if z == nil {
		return ""
	}
	return z.String()
}

func (s *SQL) GetEvent(ctx context.Context, id string) (model.Event, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM events WHERE id = ?`), id).Scan(&body)
	if err != nil {
		return model.Event{}, notFound(err)
	}
	var e model.Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return model.Event{}, eris.Wrap(err, "decode event")
	}
	return e, nil
}

func (s *SQL) SaveEventWithLinks(ctx context.Context, e model.Event, links []model.EntityLink) (created bool, err error) {
	body, err := json.Marshal(e)
	if err != nil {
		return false, eris.Wrap(err, "encode event")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "begin")
	}
	defer func() {
		if err != nil || !created {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO events (id, document_id, zone, estimated_at, body)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		e.ID, e.DocumentID, zoneColumn(e.Zone), toMillis(e.EstimatedAt), string(body))
	if err != nil {
		return false, eris.Wrapf(err, "insert event %s", e.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	for _, l := range links {
		if _, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO entity_links (entity_id, event_id, role)
			VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), l.EntityID, e.ID, string(l.Role)); err != nil {
			return false, eris.Wrapf(err, "link entity %s", l.EntityID)
		}
	}
	if err = tx.Commit(); err != nil {
		return false, eris.Wrap(err, "commit event")
	}
	return true, nil
}

func (s *SQL) listEvents(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "list events")
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e model.Event
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, eris.Wrap(err, "decode event")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQL) ListEventsByZone(ctx context.Context, zone model.ZoneKey, since time.Time) ([]model.Event, error) {
	key := ""
	if !zone.IsZero() {
		key = zone.String()
	}
	return s.listEvents(ctx, `SELECT body FROM events WHERE zone = ? AND estimated_at >= ?
		ORDER BY estimated_at, id`, key, toMillis(since))
}

func (s *SQL) ListEventsByDocument(ctx context.Context, documentID string) ([]model.Event, error) {
	return s.listEvents(ctx, `SELECT body FROM events WHERE document_id = ? ORDER BY estimated_at, id`, documentID)
}

// --- entities ---

func (s *SQL) GetOrCreateEntity(ctx context.Context, e model.NamedEntity) (stored model.NamedEntity, created bool, err error) {
	if e.ID == "" {
		e.ID = EntityID(e.Type, e.Key)
	}
	if e.Mentions < 1 {
		e.Mentions = 1
	}
	if e.LastSeen.Before(e.FirstSeen) {
		e.LastSeen = e.FirstSeen
	}
	e.Aliases = mergeAliases(nil, e.Aliases)
	aliases, _ := json.Marshal(e.Aliases)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NamedEntity{}, false, eris.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO entities
		(id, type, norm_key, canonical_name, aliases, first_seen, last_seen, mentions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (type, norm_key) DO NOTHING`),
		e.ID, string(e.Type), e.Key, e.CanonicalName, string(aliases),
		toMillis(e.FirstSeen), toMillis(e.LastSeen), e.Mentions)
	if err != nil {
		return model.NamedEntity{}, false, eris.Wrapf(err, "insert entity %s", e.Key)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		if err = tx.Commit(); err != nil {
			return model.NamedEntity{}, false, eris.Wrap(err, "commit entity")
		}
		return e, true, nil
	}

	seen := toMillis(e.LastSeen)
	var (
		cur         model.NamedEntity
		typ, rawAls string
		first, last int64
	)
	err = tx.QueryRowContext(ctx, s.rebind(`UPDATE entities
		SET mentions = mentions + 1,
		    last_seen = CASE WHEN last_seen < ? THEN ? ELSE last_seen END
		WHERE type = ? AND norm_key = ?
		RETURNING id, type, norm_key, canonical_name, aliases, first_seen, last_seen, mentions`),
		seen, seen, string(e.Type), e.Key).
		Scan(&cur.ID, &typ, &cur.Key, &cur.CanonicalName, &rawAls, &first, &last, &cur.Mentions)
	if err != nil {
		return model.NamedEntity{}, false, eris.Wrapf(err, "bump entity %s", e.Key)
	}
	cur.Type = model.EntityType(typ)
	cur.FirstSeen, cur.LastSeen = fromMillis(first), fromMillis(last)
	if err = json.Unmarshal([]byte(rawAls), &cur.Aliases); err != nil {
		return model.NamedEntity{}, false, eris.Wrap(err, "decode aliases")
	}
	merged := mergeAliases(cur.Aliases, e.Aliases)
	if len(merged) != len(cur.Aliases) {
		b, _ := json.Marshal(merged)
		if _, err = tx.ExecContext(ctx, s.rebind(`UPDATE entities SET aliases = ? WHERE id = ?`),
			string(b), cur.ID); err != nil {
			return model.NamedEntity{}, false, eris.Wrap(err, "merge aliases")
		}
		cur.Aliases = merged
	}
	if err = tx.Commit(); err != nil {
		return model.NamedEntity{}, false, eris.Wrap(err, "commit entity")
	}
	return cur, false, nil
}

func (s *SQL) GetEntity(ctx context.Context, typ model.EntityType, key string) (model.NamedEntity, error) {
	var (
		e           model.NamedEntity
		t, rawAls   string
		first, last int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, type, norm_key, canonical_name, aliases,
		first_seen, last_seen, mentions FROM entities WHERE type = ? AND norm_key = ?`), string(typ), key).
		Scan(&e.ID, &t, &e.Key, &e.CanonicalName, &rawAls, &first, &last, &e.Mentions)
	if err != nil {
		return model.NamedEntity{}, notFound(err)
	}
	e.Type = model.EntityType(t)
	e.FirstSeen, e.LastSeen = fromMillis(first), fromMillis(last)
	if err := json.Unmarshal([]byte(rawAls), &e.Aliases); err != nil {
		return model.NamedEntity{}, eris.Wrap(err, "decode aliases")
	}
	return e, nil
}

func (s *SQL) ListEntityLinks(ctx context.Context, eventID string) ([]model.EntityLink, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT entity_id, event_id, role FROM entity_links
		WHERE event_id = ? ORDER BY role, entity_id`), eventID)
	if err != nil {
		return nil, eris.Wrap(err, "list links")
	}
	defer rows.Close()
	var out []model.EntityLink
	for rows.Next() {
		var (
			l    model.EntityLink
			role string
		)
		if err := rows.Scan(&l.EntityID, &l.EventID, &role); err != nil {
			return nil, err
		}
		l.Role = model.Role(role)
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- groups ---

func (s *SQL) SaveGroup(ctx context.Context, g model.EventGroup) error {
	body, err := json.Marshal(g)
	if err != nil {
		return eris.Wrap(err, "encode group")
	}
	_, err = s.exec(ctx, `INSERT INTO event_groups (id, zone, anchor_at, created_at, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET anchor_at = excluded.anchor_at, body = excluded.body`,
		g.ID, g.Zone.String(), toMillis(g.AnchorAt), toMillis(g.CreatedAt), string(body))
	return eris.Wrapf(err, "save group %s", g.ID)
}

func (s *SQL) GetGroup(ctx context.Context, id string) (model.EventGroup, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM event_groups WHERE id = ?`), id).Scan(&body)
	if err != nil {
		return model.EventGroup{}, notFound(err)
	}
	var g model.EventGroup
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return model.EventGroup{}, eris.Wrap(err, "decode group")
	}
	return g, nil
}

func (s *SQL) ListGroups(ctx context.Context, zone model.ZoneKey, since time.Time) ([]model.EventGroup, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT body FROM event_groups
		WHERE zone = ? AND anchor_at >= ? ORDER BY created_at, id`), zone.String(), toMillis(since))
	if err != nil {
		return nil, eris.Wrap(err, "list groups")
	}
	defer rows.Close()
	var out []model.EventGroup
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var g model.EventGroup
		if err := json.Unmarshal([]byte(body), &g); err != nil {
			return nil, eris.Wrap(err, "decode group")
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- zone scores ---

func (s *SQL) GetZoneScore(ctx context.Context, zone model.ZoneKey) (model.ZoneScore, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM zone_scores WHERE zone = ?`), zone.String()).Scan(&body)
	if err != nil {
		return model.ZoneScore{}, notFound(err)
	}
	var zs model.ZoneScore
	if err := json.Unmarshal([]byte(body), &zs); err != nil {
		return model.ZoneScore{}, eris.Wrap(err, "decode zone score")
	}
	return zs, nil
}

func (s *SQL) SaveZoneScore(ctx context.Context, zs model.ZoneScore) error {
	body, err := json.Marshal(zs)
	if err != nil {
		return eris.Wrap(err, "encode zone score")
	}
	_, err = s.exec(ctx, `INSERT INTO zone_scores (zone, body) VALUES (?, ?)
		ON CONFLICT (zone) DO UPDATE SET body = excluded.body`, zs.Zone.String(), string(body))
	return eris.Wrapf(err, "save zone score %s", zs.Zone)
}

func (s *SQL) ListZoneScores(ctx context.Context) ([]model.ZoneScore, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM zone_scores ORDER BY zone`)
	if err != nil {
		return nil, eris.Wrap(err, "list zone scores")
	}
	defer rows.Close()
	var out []model.ZoneScore
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var zs model.ZoneScore
		if err := json.Unmarshal([]byte(body), &zs); err != nil {
			return nil, eris.Wrap(err, "decode zone score")
		}
		out = append(out, zs)
	}
	return out, rows.Err()
}
