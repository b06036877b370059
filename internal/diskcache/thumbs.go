package diskcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"imagepool/internal/storage"
)

// MaxThumbnailBytes caps a single cached download.
const MaxThumbnailBytes int64 = 20 << 20

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9:_-]+`)

// SafeName maps a pool key to a cache file name.
func SafeName(key string) string {
	return unsafeChars.ReplaceAllString(key, "_") + ".jpg"
}

// ThumbCache downloads thumbnails into a flat directory keyed by pool key.
type ThumbCache struct {
	fs        afero.Fs
	dir       string
	client    *http.Client
	userAgent string
	log       logrus.FieldLogger
}

func NewThumbCache(fs afero.Fs, dir string, client *http.Client, userAgent string, logger logrus.FieldLogger) *ThumbCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &ThumbCache{
		fs:        fs,
		dir:       dir,
		client:    client,
		userAgent: userAgent,
		log:       logger.WithField("component", "thumb_cache"),
	}
}

// Path returns where the thumbnail for key is stored.
func (c *ThumbCache) Path(key string) string {
	return filepath.Join(c.dir, SafeName(key))
}

// Store caches url under key. It reports true when a non-empty file is
// present afterwards, including when it already was.
func (c *ThumbCache) Store(ctx context.Context, key, url string) (bool, error) {
	out := c.Path(key)
	if info, err := c.fs.Stat(out); err == nil && info.Size() > 0 {
		return true, nil
	} else if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat %s: %w", out, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("creating thumbnail request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetching thumbnail %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("thumbnail %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxThumbnailBytes+1))
	if err != nil {
		return false, fmt.Errorf("reading thumbnail %s: %w", url, err)
	}
	if int64(len(body)) > MaxThumbnailBytes {
		return false, fmt.Errorf("thumbnail %s exceeds %d bytes", url, MaxThumbnailBytes)
	}
	if len(body) == 0 {
		return false, fmt.Errorf("thumbnail %s is empty", url)
	}

	if err := storage.WriteFileAtomic(c.fs, out, body); err != nil {
		return false, err
	}
	c.log.WithFields(logrus.Fields{"key": key, "bytes": len(body)}).Debug("Thumbnail cached")
	return true, nil
}
