package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bookbridge/searchd/pkg/errors"
)

// MemStore is an in-memory Store with the same revision semantics as the
// Postgres implementation. It backs tests and embedded deployments.
type MemStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	revision uint64
	cursor   uint64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*Record)}
}

// Put stores a copy of rec under the next revision.
func (s *MemStore) Put(ctx context.Context, rec *Record) (uint64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	stored := *rec
	stored.Revision = s.revision
	stored.Deleted = false
	stored.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = &stored
	rec.Revision = s.revision
	return s.revision, nil
}

// Get returns a copy of the live record with the given ID.
func (s *MemStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.Deleted {
		return nil, errors.Newf(errors.ErrNotFound, 404, "record %s", id)
	}
	out := *rec
	return &out, nil
}

// Delete tombstones the record under a fresh revision.
func (s *MemStore) Delete(ctx context.Context, id string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Deleted {
		return 0, errors.Newf(errors.ErrNotFound, 404, "record %s", id)
	}
	s.revision++
	rec.Deleted = true
	rec.Revision = s.revision
	rec.UpdatedAt = time.Now().UTC()
	return s.revision, nil
}

// ChangesSince returns up to limit record copies with revision > cursor in
// revision-ascending order.
func (s *MemStore) ChangesSince(ctx context.Context, cursor uint64, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var changes []Record
	for _, rec := range s.records {
		if rec.Revision > cursor {
			changes = append(changes, *rec)
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Revision < changes[j].Revision
	})
	if limit > 0 && len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

// Exists reports whether a live record with the given ID exists.
func (s *MemStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return ok && !rec.Deleted, nil
}

// Count returns the number of live records.
func (s *MemStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, rec := range s.records {
		if !rec.Deleted {
			count++
		}
	}
	return count, nil
}

// CurrentRevision returns the latest assigned revision.
func (s *MemStore) CurrentRevision(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

// LoadCursor implements CursorStore.
func (s *MemStore) LoadCursor(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, nil
}

// SaveCursor implements CursorStore.
func (s *MemStore) SaveCursor(ctx context.Context, cursor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	return nil
}
