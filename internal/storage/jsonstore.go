package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"imagepool/internal/domain"
)

// PoolVersion is the document format written by Save.
const PoolVersion = 1

// TimeLayout is the updated_at format of the pool document.
const TimeLayout = "2006-01-02T15:04:05Z"

// JSONStore implements PoolRepository as a single JSON document on an afero.Fs.
type JSONStore struct {
	fs    afero.Fs
	path  string
	log   logrus.FieldLogger
	nowFn func() time.Time
}

// NewJSONStore creates a store for the document at path.
func NewJSONStore(fs afero.Fs, path string, logger logrus.FieldLogger) *JSONStore {
	return &JSONStore{
		fs:    fs,
		path:  path,
		log:   logger.WithFields(logrus.Fields{"component": "pool_store", "path": path}),
		nowFn: time.Now,
	}
}

// Path returns the document location.
func (s *JSONStore) Path() string { return s.path }

// Load reads and validates the pool document.
func (s *JSONStore) Load(ctx context.Context) (domain.Pool, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("Pool document not found, starting empty")
			return domain.Pool{Version: PoolVersion, Items: []domain.PoolEntry{}}, nil
		}
		return domain.Pool{}, fmt.Errorf("failed to read pool %s: %w", s.path, err)
	}

	var pool domain.Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		s.log.WithError(err).Error("Pool document is not valid JSON")
		return domain.Pool{}, fmt.Errorf("%w: %s: %v", domain.ErrCorruptPool, s.path, err)
	}
	if err := validate(pool); err != nil {
		s.log.WithError(err).Error("Pool document failed validation")
		return domain.Pool{}, fmt.Errorf("%s: %w", s.path, err)
	}
	if pool.Items == nil {
		pool.Items = []domain.PoolEntry{}
	}

	s.log.WithField("items", len(pool.Items)).Debug("Pool loaded")
	return pool, nil
}

func validate(pool domain.Pool) error {
	if pool.Version > PoolVersion {
		return fmt.Errorf("%w %d", domain.ErrUnsupportedVersion, pool.Version)
	}
	seen := make(map[string]struct{}, len(pool.Items))
	for i, it := range pool.Items {
		if !domain.ValidKey(it.Key) {
			return fmt.Errorf("%w: item %d has unusable key %q", domain.ErrCorruptPool, i, it.Key)
		}
		if _, dup := seen[it.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q", domain.ErrCorruptPool, it.Key)
		}
		seen[it.Key] = struct{}{}
		if it.FirstSeen > it.LastSeen {
			return fmt.Errorf("%w: key %q first_seen after last_seen", domain.ErrCorruptPool, it.Key)
		}
	}
	return nil
}

// Save writes items as a new document: temp file in the same directory,
// fsync, rename over the target.
func (s *JSONStore) Save(ctx context.Context, items []domain.PoolEntry) (domain.Pool, error) {
	if items == nil {
		items = []domain.PoolEntry{}
	}
	pool := domain.Pool{
		Version:   PoolVersion,
		UpdatedAt: s.nowFn().UTC().Format(TimeLayout),
		Items:     items,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pool); err != nil {
		return domain.Pool{}, fmt.Errorf("failed to marshal pool: %w", err)
	}

	if err := WriteFileAtomic(s.fs, s.path, buf.Bytes()); err != nil {
		s.log.WithError(err).Error("Failed to save pool")
		return domain.Pool{}, err
	}

	s.log.WithField("items", len(items)).Info("Pool saved")
	return pool, nil
}

// WriteFileAtomic replaces path with data so that readers never observe a
// partially written file.
func WriteFileAtomic(fs afero.Fs, path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
