package storage

import (
	"context"

	"imagepool/internal/domain"
)

// PoolRepository persists the pool document. Implementations must make Save
// atomic: a reader sees either the previous document or the new one.
type PoolRepository interface {
	// Load returns the persisted pool. A missing document is an empty pool;
	// an unreadable one fails with domain.ErrCorruptPool.
	Load(ctx context.Context) (domain.Pool, error)

	// Save replaces the persisted pool with items, stamping version and updated_at.
	Save(ctx context.Context, items []domain.PoolEntry) (domain.Pool, error)
}

// Archive keeps entries evicted from the pool so they can be listed or
// restored into it later. It is unbounded.
type Archive interface {
	// Put records evicted entries, overwriting earlier records for the same key.
	Put(ctx context.Context, entries []domain.PoolEntry) error

	// Get returns the archived entry for key or domain.ErrNotFound.
	Get(ctx context.Context, key string) (ArchivedEntry, error)

	// List returns all archived entries, most recently evicted first.
	List(ctx context.Context) ([]ArchivedEntry, error)

	// Delete removes key from the archive. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close gracefully shuts down the archive.
	Close() error
}

// ArchiveOpener opens the archive for one operation. Callers close it when
// done so that other processes can open the same store in between.
type ArchiveOpener func() (Archive, error)
