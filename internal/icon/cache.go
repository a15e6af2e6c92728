// Package icon maintains the content-addressed local cache for remote
// icons and thumbnails.
package icon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/fetch"
)

// downloadTimeout bounds one asset download. Assets are enrichment;
// reliability tolerance is low.
const downloadTimeout = 15 * time.Second

// extByMIME maps resolved content types to file extensions. Types outside
// this map are rejected rather than written to disk.
var extByMIME = map[string]string{
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/svg+xml":            ".svg",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/avif":               ".avif",
	"image/bmp":                ".bmp",
}

// cachedName matches the only filenames the cache ever produces or serves:
// a hex digest plus a known extension. Anything else is refused, which
// keeps traversal sequences out of serve paths by construction.
var cachedName = regexp.MustCompile(`^[a-f0-9]{64}\.[a-z]+$`)

// Fetcher is the transport dependency; satisfied by *fetch.Client.
type Fetcher interface {
	Get(ctx context.Context, url string, cond fetch.Conditional) (*fetch.Result, error)
}

// Cache stores downloaded assets under dir, one file per remote URL,
// addressed by the SHA-256 of that URL.
type Cache struct {
	dir    string
	client Fetcher
	log    *logrus.Entry
}

// NewCache creates the cache directory if needed.
func NewCache(dir string, client Fetcher, log *logrus.Entry) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, client: client, log: log}, nil
}

// Ensure returns the cached filename and content type for a remote URL,
// downloading it on first use. The name is stable across calls.
func (c *Cache) Ensure(ctx context.Context, remoteURL string) (name, contentType string, err error) {
	sum := sha256.Sum256([]byte(remoteURL))
	base := hex.EncodeToString(sum[:])

	if name, contentType, ok := c.lookup(base); ok {
		return name, contentType, nil
	}

	dctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	res, err := c.client.Get(dctx, remoteURL, fetch.Conditional{})
	if err != nil {
		return "", "", fmt.Errorf("download asset: %w", err)
	}
	if len(res.Body) == 0 {
		return "", "", fmt.Errorf("empty asset body")
	}

	contentType = resolveMIME(res.ContentType, res.Body)
	ext, ok := extByMIME[contentType]
	if !ok {
		return "", "", fmt.Errorf("unsupported asset type %q", contentType)
	}

	name = base + ext
	if !cachedName.MatchString(name) {
		return "", "", fmt.Errorf("invalid cache name %q", name)
	}
	if err := os.WriteFile(filepath.Join(c.dir, name), res.Body, 0o644); err != nil {
		return "", "", fmt.Errorf("write asset: %w", err)
	}
	return name, contentType, nil
}

// Resolve validates a stored name and returns the absolute path for
// serving. Names that could escape the cache directory are rejected.
func (c *Cache) Resolve(name string) (string, error) {
	if !cachedName.MatchString(name) {
		return "", fmt.Errorf("invalid cached asset name %q", name)
	}
	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cached asset missing: %w", err)
	}
	return path, nil
}

// lookup finds an already downloaded file for the digest.
func (c *Cache) lookup(base string) (name, contentType string, ok bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, base+".*"))
	if err != nil || len(matches) == 0 {
		return "", "", false
	}
	name = filepath.Base(matches[0])
	if !cachedName.MatchString(name) {
		return "", "", false
	}
	ext := filepath.Ext(name)
	for mime, e := range extByMIME {
		if e == ext {
			return name, mime, true
		}
	}
	return "", "", false
}

// resolveMIME prefers the declared content type, falling back to content
// sniffing.
func resolveMIME(declared string, body []byte) string {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if _, ok := extByMIME[declared]; ok {
		return declared
	}
	return http.DetectContentType(body)
}
