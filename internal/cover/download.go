package cover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"imagepool/internal/domain"
	"imagepool/internal/storage"
)

const (
	// DownloadTimeout bounds one cover download.
	DownloadTimeout = 30 * time.Second
	// MaxCoverBytes caps the size of a downloaded cover.
	MaxCoverBytes int64 = 50 << 20
	// SidecarMode marks covers taken from the public pool.
	SidecarMode = "public_pool"
)

// Downloader fetches a picked cover onto the filesystem.
type Downloader struct {
	fs        afero.Fs
	client    *http.Client
	userAgent string
	log       logrus.FieldLogger
}

func NewDownloader(fs afero.Fs, client *http.Client, userAgent string, logger logrus.FieldLogger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: DownloadTimeout}
	}
	return &Downloader{
		fs:        fs,
		client:    client,
		userAgent: userAgent,
		log:       logger.WithField("component", "cover_downloader"),
	}
}

// Fetch downloads url to out, creating parent directories.
func (d *Downloader) Fetch(ctx context.Context, url, out string) error {
	log := d.log.WithFields(logrus.Fields{"url": url, "out": out})

	ctx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating cover request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Cover download failed")
		return fmt.Errorf("fetching cover %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxCoverBytes+1))
	if err != nil {
		return fmt.Errorf("reading cover %s: %w", url, err)
	}
	if int64(len(body)) > MaxCoverBytes {
		return fmt.Errorf("cover %s exceeds %s", url, humanize.IBytes(uint64(MaxCoverBytes)))
	}
	if len(body) == 0 {
		return fmt.Errorf("cover %s is empty", url)
	}

	if err := storage.WriteFileAtomic(d.fs, out, body); err != nil {
		return err
	}
	log.WithField("size", humanize.Bytes(uint64(len(body)))).Info("Cover downloaded")
	return nil
}

// Sidecar records which pool entry a cover came from.
type Sidecar struct {
	Mode        string              `json:"mode"`
	Picked      domain.PoolEntry    `json:"picked"`
	Slug        string              `json:"slug"`
	Attribution *domain.Attribution `json:"attribution,omitempty"`
}

// SidecarPath swaps the extension of out for ".meta.json".
func SidecarPath(out string) string {
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".meta.json"
}

// WriteSidecar stores meta next to out and returns its path.
func WriteSidecar(fs afero.Fs, out string, meta Sidecar) (string, error) {
	if meta.Mode == "" {
		meta.Mode = SidecarMode
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	path := SidecarPath(out)
	if err := storage.WriteFileAtomic(fs, path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// Result is the one-line summary printed after a successful pick.
type Result struct {
	CoverRel   string `json:"cover_rel"`
	Source     string `json:"source"`
	License    string `json:"license"`
	LicenseURL string `json:"license_url"`
}

// NewResult describes the cover written to out for slug.
func NewResult(slug, out string, picked domain.PoolEntry) Result {
	return Result{
		CoverRel:   "/images/posts/" + slug + "/" + filepath.Base(out),
		Source:     picked.URL,
		License:    picked.License,
		LicenseURL: picked.LicenseURL,
	}
}
