package diskcache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func writeAged(t *testing.T, fs afero.Fs, path string, size int, age time.Duration) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, bytes.Repeat([]byte("x"), size), 0o644))
	mt := base.Add(-age)
	require.NoError(t, fs.Chtimes(path, mt, mt))
}

func exists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

func TestPrune_DeletesOldestFirst(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "cache/a.jpg", 100, 3*time.Hour)
	writeAged(t, fs, "cache/b.jpg", 100, 2*time.Hour)
	writeAged(t, fs, "cache/nested/c.jpg", 100, 1*time.Hour)
	writeAged(t, fs, "cache/d.jpg", 100, 0)

	report, err := Prune(fs, "cache", 250)
	require.NoError(t, err)

	assert.Equal(t, int64(400), report.Before)
	assert.Equal(t, int64(200), report.After)
	assert.Equal(t, 2, report.DeletedFiles)
	assert.False(t, exists(fs, "cache/a.jpg"))
	assert.False(t, exists(fs, "cache/b.jpg"))
	assert.True(t, exists(fs, "cache/nested/c.jpg"))
	assert.True(t, exists(fs, "cache/d.jpg"))
}

func TestPrune_UnderCapIsNoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "cache/a.jpg", 10, time.Hour)

	report, err := Prune(fs, "cache", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.DeletedFiles)
	assert.Equal(t, int64(10), report.After)
}

func TestPrune_CapSmallerThanSmallestFileDeletesAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "cache/x/a.jpg", 50, time.Hour)
	writeAged(t, fs, "cache/x/y/b.jpg", 60, 2*time.Hour)

	report, err := Prune(fs, "cache", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.DeletedFiles)
	assert.Equal(t, int64(0), report.After)

	assert.False(t, exists(fs, "cache/x/y"), "empty dirs are removed")
	assert.False(t, exists(fs, "cache/x"))
	assert.True(t, exists(fs, "cache"), "the root is kept")
}

func TestPrune_BoundHolds(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 30; i++ {
		writeAged(t, fs, filepath.Join("cache", string(rune('a'+i%26))+string(rune('0'+i/26))+".jpg"), 37*(i+1), time.Duration(i)*time.Minute)
	}
	for _, capBytes := range []int64{0, 1, 500, 5000, 100000} {
		_, err := Prune(fs, "cache", capBytes)
		require.NoError(t, err)
		size, err := Size(fs, "cache")
		require.NoError(t, err)
		assert.LessOrEqual(t, size, capBytes, "cap %d", capBytes)
		if capBytes == 0 {
			assert.Zero(t, size)
		}
	}
}

func TestPrune_MissingDirIsCreated(t *testing.T) {
	fs := afero.NewMemMapFs()
	report, err := Prune(fs, "nope/cache", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Before)
	assert.True(t, exists(fs, "nope/cache"))
}

// vanishingFs deletes a file just before the pruner removes it.
type vanishingFs struct {
	afero.Fs
	victim string
}

func (v vanishingFs) Remove(name string) error {
	if name == v.victim {
		_ = v.Fs.Remove(name)
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	return v.Fs.Remove(name)
}

func TestPrune_ToleratesVanishedFiles(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeAged(t, mem, "cache/old.jpg", 100, 2*time.Hour)
	writeAged(t, mem, "cache/new.jpg", 100, time.Hour)

	report, err := Prune(vanishingFs{Fs: mem, victim: filepath.Join("cache", "old.jpg")}, "cache", 100)
	require.NoError(t, err)
	assert.Equal(t, 0, report.DeletedFiles, "a vanished file is freed but not counted as deleted")
	assert.Equal(t, int64(100), report.After)
	assert.True(t, exists(mem, "cache/new.jpg"))
}

func TestPrune_RealFilesystem(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()
	writeAged(t, fs, filepath.Join(dir, "k", "old.jpg"), 300, 2*time.Hour)
	writeAged(t, fs, filepath.Join(dir, "new.jpg"), 300, time.Hour)

	report, err := Prune(fs, dir, 400)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedFiles)
	assert.Equal(t, int64(300), report.After)
	assert.False(t, exists(fs, filepath.Join(dir, "k")))
}
