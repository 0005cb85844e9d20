package dedup

import (
	"container/list"
	"sync"
	"time"
)

// recent is a TTL-bound LRU from dedup key (content hash or URL key) to
// document ID. It only short-circuits store lookups; the store stays authoritative.
type recent struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	now   func() time.Time
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element
}

type entry struct {
	key   string
	docID string
	exp   time.Time
}

func newRecent(maxKeys int, ttl time.Duration, now func() time.Time) *recent {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &recent{cap: maxKeys, ttl: ttl, now: now, ll: list.New(), items: make(map[string]*list.Element)}
}

// Get returns the document ID cached for key if it has not expired.
func (r *recent) Get(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.items[key]
	if !ok {
		return "", false
	}
	en := el.Value.(entry)
	if r.now().Before(en.exp) {
		r.ll.MoveToFront(el)
		return en.docID, true
	}
	r.ll.Remove(el)
	delete(r.items, key)
	return "", false
}

// Put records key -> docID, refreshing the expiry when the key is already present.
func (r *recent) Put(key, docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if el, ok := r.items[key]; ok {
		el.Value = entry{key: key, docID: docID, exp: now.Add(r.ttl)}
		r.ll.MoveToFront(el)
		return
	}
	r.items[key] = r.ll.PushFront(entry{key: key, docID: docID, exp: now.Add(r.ttl)})
	for r.ll.Len() > r.cap {
		r.evict(r.ll.Back())
	}
	// drop expired entries at the tail
	for t := r.ll.Back(); t != nil && !now.Before(t.Value.(entry).exp); t = r.ll.Back() {
		r.evict(t)
	}
}

func (r *recent) evict(el *list.Element) {
	r.ll.Remove(el)
	delete(r.items, el.Value.(entry).key)
}

func (r *recent) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ll.Len()
}
