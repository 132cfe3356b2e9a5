package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// lruEntry wraps an Entry with its key and expiry for eviction.
type lruEntry struct {
	key     string
	entry   *Entry
	expires time.Time
}

// LRUBackend is a bounded in-process backend. Used standalone in embedded
// deployments and as the fallback when Redis is not configured.
type LRUBackend struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
}

// NewLRU creates a backend that holds at most maxEntries results.
func NewLRU(maxEntries int) *LRUBackend {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &LRUBackend{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (b *LRUBackend) Get(_ context.Context, key string) (*Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	elem, ok := b.items[key]
	if !ok {
		return nil, false
	}
	le := elem.Value.(*lruEntry)
	if !le.expires.IsZero() && time.Now().After(le.expires) {
		b.removeLocked(elem)
		return nil, false
	}
	b.order.MoveToFront(elem)
	return le.entry, true
}

func (b *LRUBackend) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if elem, ok := b.items[key]; ok {
		elem.Value = &lruEntry{key: key, entry: entry, expires: expires}
		b.order.MoveToFront(elem)
		return
	}
	b.items[key] = b.order.PushFront(&lruEntry{key: key, entry: entry, expires: expires})
	for b.order.Len() > b.maxEntries {
		b.removeLocked(b.order.Back())
	}
}

func (b *LRUBackend) Delete(_ context.Context, keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		if elem, ok := b.items[key]; ok {
			b.removeLocked(elem)
		}
	}
}

// InvalidateDocs scans all resident entries and drops those referencing
// any changed document. The scan is bounded by maxEntries.
func (b *LRUBackend) InvalidateDocs(_ context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	changed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		changed[id] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var stale []*list.Element
	for elem := b.order.Front(); elem != nil; elem = elem.Next() {
		le := elem.Value.(*lruEntry)
		for _, docID := range le.entry.DocIDs {
			if _, hit := changed[docID]; hit {
				stale = append(stale, elem)
				break
			}
		}
	}
	for _, elem := range stale {
		b.removeLocked(elem)
	}
}

func (b *LRUBackend) InvalidateAll(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order.Init()
	b.items = make(map[string]*list.Element)
	return nil
}

// Len reports the number of resident entries.
func (b *LRUBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

func (b *LRUBackend) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	le := elem.Value.(*lruEntry)
	b.order.Remove(elem)
	delete(b.items, le.key)
}
