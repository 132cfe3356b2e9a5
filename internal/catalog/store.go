package catalog

import "context"

// Store is the durable catalog store contract. Put and Delete atomically
// advance the store-wide revision counter before returning; a cursor taken
// after either returns is guaranteed to observe that write on the next
// ChangesSince call.
type Store interface {
	// Put persists the record and returns the revision it was assigned.
	Put(ctx context.Context, rec *Record) (uint64, error)
	// Get returns the current record, or ErrNotFound for unknown or
	// deleted IDs.
	Get(ctx context.Context, id string) (*Record, error)
	// Delete tombstones the record and returns the deletion's revision.
	Delete(ctx context.Context, id string) (uint64, error)
	// ChangesSince returns up to limit records with revision > cursor,
	// ordered by revision ascending. Tombstones are included. The
	// sequence is restartable: calling again with the last returned
	// revision resumes where the previous call stopped.
	ChangesSince(ctx context.Context, cursor uint64, limit int) ([]Record, error)
	// Exists reports whether a live (non-tombstoned) record exists.
	Exists(ctx context.Context, id string) (bool, error)
	// Count returns the number of live records.
	Count(ctx context.Context) (int64, error)
	// CurrentRevision returns the latest assigned revision.
	CurrentRevision(ctx context.Context) (uint64, error)
}

// CursorStore persists the synchronizer's last fully-applied revision.
type CursorStore interface {
	LoadCursor(ctx context.Context) (uint64, error)
	SaveCursor(ctx context.Context, cursor uint64) error
}
