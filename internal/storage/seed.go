package storage

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"imagepool/internal/domain"
)

// SeedItem is one entry of the bulk-populated, industry-tagged seed pool.
type SeedItem struct {
	ID         string   `yaml:"id"`
	Industry   string   `yaml:"industry"`
	Tags       []string `yaml:"tags"`
	Title      string   `yaml:"title"`
	URL        string   `yaml:"url"`
	ImageURL   string   `yaml:"image_url"`
	License    string   `yaml:"license"`
	LicenseURL string   `yaml:"license_url"`
	Provider   string   `yaml:"provider"`
	Weight     float64  `yaml:"weight"`
}

// SeedDocument is the YAML layout written by the seed builder.
type SeedDocument struct {
	Version   int        `yaml:"version"`
	Source    string     `yaml:"source"`
	Generated bool       `yaml:"generated"`
	Pool      []SeedItem `yaml:"pool"`
}

// Entry converts a seed item to a pool entry. Seed entries carry no score
// and no timestamps.
func (s SeedItem) Entry() domain.PoolEntry {
	return domain.PoolEntry{
		Key:        domain.KeyFor(s.Provider, s.ID),
		Provider:   s.Provider,
		Industry:   s.Industry,
		Title:      s.Title,
		URL:        s.URL,
		ImageURL:   s.ImageURL,
		License:    s.License,
		LicenseURL: s.LicenseURL,
		Tags:       append([]string(nil), s.Tags...),
		Weight:     s.Weight,
	}
}

// SeedStore reads and writes the seed pool YAML.
type SeedStore struct {
	fs   afero.Fs
	path string
}

func NewSeedStore(fs afero.Fs, path string) *SeedStore {
	return &SeedStore{fs: fs, path: path}
}

// Load parses the seed document. A missing file is an empty document.
func (s *SeedStore) Load() (SeedDocument, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return SeedDocument{Version: 1}, nil
		}
		return SeedDocument{}, fmt.Errorf("failed to read seed pool %s: %w", s.path, err)
	}
	var doc SeedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return SeedDocument{}, fmt.Errorf("%w: seed pool %s: %v", domain.ErrCorruptPool, s.path, err)
	}
	return doc, nil
}

// Entries loads the seed pool as pool entries.
func (s *SeedStore) Entries() ([]domain.PoolEntry, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PoolEntry, 0, len(doc.Pool))
	for _, it := range doc.Pool {
		out = append(out, it.Entry())
	}
	return out, nil
}

// Save writes doc atomically.
func (s *SeedStore) Save(doc SeedDocument) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to marshal seed pool: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal seed pool: %w", err)
	}
	return WriteFileAtomic(s.fs, s.path, buf.Bytes())
}
