package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// Memory is a process-local Store. Values are copied in and out so callers
// never share slices or maps with the store.
type Memory struct {
	mu sync.RWMutex

	sources    map[string]model.Source
	docs       map[string]model.Document
	docsByHash map[string]string
	events     map[string]model.Event
	entities   map[string]model.NamedEntity // by type|key
	links      map[string][]model.EntityLink
	groups     map[string]model.EventGroup
	zones      map[model.ZoneKey]model.ZoneScore
}

func NewMemory() *Memory {
	return &Memory{
		sources:    map[string]model.Source{},
		docs:       map[string]model.Document{},
		docsByHash: map[string]string{},
		events:     map[string]model.Event{},
		entities:   map[string]model.NamedEntity{},
		links:      map[string][]model.EntityLink{},
		groups:     map[string]model.EventGroup{},
		zones:      map[model.ZoneKey]model.ZoneScore{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) SaveSource(_ context.Context, s model.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID] = s
	return nil
}

func (m *Memory) GetSource(_ context.Context, id string) (model.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[id]
	if !ok {
		return model.Source{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSources(_ context.Context) ([]model.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	return cloneDocument(d), nil
}

func (m *Memory) FindDocumentByHash(_ context.Context, hash string) (model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.docsByHash[hash]
	if !ok {
		return model.Document{}, ErrNotFound
	}
	return cloneDocument(m.docs[id]), nil
}

func (m *Memory) LatestDocumentByURLKey(_ context.Context, key string) (model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  model.Document
		found bool
	)
	for _, d := range m.docs {
		if d.URLKey != key || key == "" {
			continue
		}
		if !found || d.RetrievedAt.After(best.RetrievedAt) {
			best, found = d, true
		}
	}
	if !found {
		return model.Document{}, ErrNotFound
	}
	return cloneDocument(best), nil
}

func (m *Memory) InsertDocument(_ context.Context, d model.Document) (model.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.docsByHash[d.ContentHash]; ok {
		return cloneDocument(m.docs[id]), false, nil
	}
	d = cloneDocument(d)
	m.docs[d.ID] = d
	m.docsByHash[d.ContentHash] = d.ID
	return cloneDocument(d), true, nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (m *Memory) SaveEventWithLinks(_ context.Context, e model.Event, links []model.EntityLink) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return false, nil
	}
	m.events[e.ID] = cloneEvent(e)
	seen := map[model.EntityLink]bool{}
	var kept []model.EntityLink
	for _, l := range links {
		l.EventID = e.ID
		if seen[l] {
			continue
		}
		seen[l] = true
		kept = append(kept, l)
	}
	m.links[e.ID] = kept
	return true, nil
}

func (m *Memory) ListEventsByZone(_ context.Context, zone model.ZoneKey, since time.Time) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	for _, e := range m.events {
		if e.ZoneOrZero() != zone || e.EstimatedAt.Before(since) {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) ListEventsByDocument(_ context.Context, documentID string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	for _, e := range m.events {
		if e.DocumentID == documentID {
			out = append(out, cloneEvent(e))
		}
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) GetOrCreateEntity(_ context.Context, e model.NamedEntity) (model.NamedEntity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(e.Type) + "|" + e.Key
	cur, ok := m.entities[k]
	if !ok {
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
		m.entities[k] = e
		return cloneEntity(e), true, nil
	}
	cur.Mentions++
	if e.LastSeen.After(cur.LastSeen) {
		cur.LastSeen = e.LastSeen
	}
	cur.Aliases = mergeAliases(cur.Aliases, e.Aliases)
	m.entities[k] = cur
	return cloneEntity(cur), false, nil
}

func (m *Memory) GetEntity(_ context.Context, typ model.EntityType, key string) (model.NamedEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[string(typ)+"|"+key]
	if !ok {
		return model.NamedEntity{}, ErrNotFound
	}
	return cloneEntity(e), nil
}

func (m *Memory) ListEntityLinks(_ context.Context, eventID string) ([]model.EntityLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.EntityLink(nil), m.links[eventID]...), nil
}

func (m *Memory) SaveGroup(_ context.Context, g model.EventGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = cloneGroup(g)
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id string) (model.EventGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return model.EventGroup{}, ErrNotFound
	}
	return cloneGroup(g), nil
}

func (m *Memory) ListGroups(_ context.Context, zone model.ZoneKey, since time.Time) ([]model.EventGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.EventGroup
	for _, g := range m.groups {
		if g.Zone != zone || g.AnchorAt.Before(since) {
			continue
		}
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetZoneScore(_ context.Context, zone model.ZoneKey) (model.ZoneScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.zones[zone]
	if !ok {
		return model.ZoneScore{}, ErrNotFound
	}
	s.CountedEventIDs = append([]string(nil), s.CountedEventIDs...)
	return s, nil
}

func (m *Memory) SaveZoneScore(_ context.Context, s model.ZoneScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CountedEventIDs = append([]string(nil), s.CountedEventIDs...)
	m.zones[s.Zone] = s
	return nil
}

func (m *Memory) ListZoneScores(_ context.Context) ([]model.ZoneScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ZoneScore, 0, len(m.zones))
	for _, s := range m.zones {
		s.CountedEventIDs = append([]string(nil), s.CountedEventIDs...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone.String() < out[j].Zone.String() })
	return out, nil
}
