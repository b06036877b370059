package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"imagepool/internal/domain"
)

// ArchivedEntry is a pool entry as it was when evicted.
type ArchivedEntry struct {
	Entry     domain.PoolEntry `json:"entry"`
	EvictedAt int64            `json:"evicted_at"`
}

// BadgerArchive implements the Archive interface using BadgerDB.
type BadgerArchive struct {
	db    *badger.DB
	log   logrus.FieldLogger
	nowFn func() time.Time
}

// NewBadgerArchive opens (or creates) the archive database at dbPath.
func NewBadgerArchive(dbPath string, logger logrus.FieldLogger) (*BadgerArchive, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerArchive{
		db:    db,
		log:   logger.WithField("component", "archive"),
		nowFn: time.Now,
	}, nil
}

// Close closes the BadgerDB database.
func (a *BadgerArchive) Close() error {
	a.log.Info("Closing BadgerDB...")
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	a.log.Info("BadgerDB closed.")
	return nil
}

// archivePrefix namespaces evicted entries.
// Format: evicted:{poolKey}
const archivePrefix = "evicted:"

func archiveKey(poolKey string) []byte {
	return []byte(archivePrefix + poolKey)
}

// putChunk bounds the entries written per transaction.
const putChunk = 256

// Put stores evicted entries, a chunk per transaction.
func (a *BadgerArchive) Put(ctx context.Context, entries []domain.PoolEntry) error {
	now := a.nowFn().Unix()

	for start := 0; start < len(entries); start += putChunk {
		end := start + putChunk
		if end > len(entries) {
			end = len(entries)
		}
		err := a.db.Update(func(txn *badger.Txn) error {
			for _, e := range entries[start:end] {
				val, err := json.Marshal(ArchivedEntry{Entry: e, EvictedAt: now})
				if err != nil {
					return fmt.Errorf("failed to marshal archived entry %s: %w", e.Key, err)
				}
				if err := txn.SetEntry(badger.NewEntry(archiveKey(e.Key), val)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			a.log.WithError(err).Error("Failed to archive evicted entries")
			return fmt.Errorf("failed to archive entries: %w", err)
		}
	}

	if len(entries) > 0 {
		a.log.WithField("count", len(entries)).Info("Evicted entries archived")
	}
	return nil
}

// Get returns the archived record for a pool key.
func (a *BadgerArchive) Get(ctx context.Context, key string) (ArchivedEntry, error) {
	var out ArchivedEntry
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(archiveKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ArchivedEntry{}, fmt.Errorf("archived entry %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return ArchivedEntry{}, fmt.Errorf("failed to get archived entry %s: %w", key, err)
	}
	return out, nil
}

// List iterates every archived entry, newest eviction first.
func (a *BadgerArchive) List(ctx context.Context) ([]ArchivedEntry, error) {
	var out []ArchivedEntry

	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(archivePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec ArchivedEntry
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to unmarshal archived entry for key %s: %w", string(item.Key()), err)
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.log.WithError(err).Error("Failed to list archive")
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EvictedAt > out[j].EvictedAt
	})
	return out, nil
}

// Delete removes a record, typically after the entry was restored.
func (a *BadgerArchive) Delete(ctx context.Context, key string) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(archiveKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived entry %s: %w", key, err)
	}
	return nil
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
