// Package diskcache bounds the local thumbnail cache by total bytes. The
// cache is advisory: pool entries may lack a cached file and cached files
// may outlive or predate their entries.
package diskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// PruneReport summarises one prune run.
type PruneReport struct {
	Dir          string `json:"cache_dir"`
	CapBytes     int64  `json:"cap"`
	Before       int64  `json:"before"`
	After        int64  `json:"after"`
	DeletedFiles int    `json:"deleted_files"`
}

type cachedFile struct {
	path    string
	modTime time.Time
	size    int64
}

// Prune deletes files under dir, oldest modification time first, until the
// total size is at most capBytes, then removes directories left empty. Files
// that vanish during the run count as already freed.
func Prune(fs afero.Fs, dir string, capBytes int64) (PruneReport, error) {
	report := PruneReport{Dir: dir, CapBytes: capBytes}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}

	files, err := listFiles(fs, dir)
	if err != nil {
		return report, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].path < files[j].path
	})

	var total int64
	for _, f := range files {
		total += f.size
	}
	report.Before = total

	for _, f := range files {
		if total <= capBytes {
			break
		}
		err := fs.Remove(f.path)
		switch {
		case err == nil:
			report.DeletedFiles++
			total -= f.size
		case os.IsNotExist(err):
			total -= f.size
		default:
			return report, fmt.Errorf("failed to delete %s: %w", f.path, err)
		}
	}

	removeEmptyDirs(fs, dir)

	after, err := listFiles(fs, dir)
	if err != nil {
		return report, err
	}
	for _, f := range after {
		report.After += f.size
	}
	return report, nil
}

// Size returns the total bytes of regular files under dir.
func Size(fs afero.Fs, dir string) (int64, error) {
	files, err := listFiles(fs, dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total, nil
}

func listFiles(fs afero.Fs, dir string) ([]cachedFile, error) {
	var files []cachedFile
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, cachedFile{path: path, modTime: info.ModTime(), size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache dir %s: %w", dir, err)
	}
	return files, nil
}

// removeEmptyDirs removes empty directories below root, deepest first.
func removeEmptyDirs(fs afero.Fs, root string) {
	var dirs []string
	_ = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && filepath.Clean(path) != filepath.Clean(root) {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		entries, err := afero.ReadDir(fs, d)
		if err != nil || len(entries) > 0 {
			continue
		}
		_ = fs.Remove(d)
	}
}
