// Package servers implements the server catalog, servername grammar,
// and selection strategies.
// This file contains the disk-backed catalog cache.
package servers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mbeltran/nmvpn/common"
)

// Catalog files run to thousands of entries; use the fast drop-in.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is the slice of the API session the catalog needs: an
// authorized request primitive and the account's access tier.
type Session interface {
	// APIRequest performs an authorized GET and returns the raw body.
	APIRequest(ctx context.Context, endpoint string) ([]byte, error)
	// Tier returns the account's maximum server tier.
	Tier() int
}

// Cache is the disk-backed copy of the full server catalog. The file
// holds the raw /vpn/logicals response; a refresh overwrites it
// wholesale. Writers across processes do not coordinate, the cache is
// advisory and re-derivable on the next refresh.
type Cache struct {
	path string
}

// NewCache returns a cache persisted at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Refresh fetches the server catalog from the API and persists it,
// unless the cached copy is still fresh and force is not set. A failed
// fetch leaves the previous cache file untouched.
func (c *Cache) Refresh(ctx context.Context, session Session, force bool) error {
	if strings.TrimSpace(c.path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidCachePath)
	}
	if info, err := os.Stat(c.path); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidCachePath, c.path)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return common.WrapError(err, "failed to create cache directory")
	}

	if !force && !c.stale() {
		return nil
	}

	common.LogDebug("Refreshing server catalog (force=%v)", force)
	body, err := session.APIRequest(ctx, "/vpn/logicals")
	if err != nil {
		return common.WrapError(err, "failed to fetch server list")
	}

	if err := os.WriteFile(c.path, body, 0600); err != nil {
		return common.WrapError(err, "failed to write server cache")
	}
	return nil
}

// stale reports whether the cached copy must be refetched: the file is
// absent or older than the refresh interval.
func (c *Cache) stale() bool {
	info, err := os.Stat(c.path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > common.CatalogRefreshInterval
}

// Load reads and decodes the cached catalog. The caller must have
// refreshed at least once; a missing file is an error, not a trigger
// for an implicit fetch.
func (c *Cache) Load() (Catalog, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, c.path)
		}
		return nil, common.WrapError(err, "failed to read server cache")
	}

	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, common.WrapError(err, "failed to parse server cache")
	}
	return Catalog(doc.LogicalServers), nil
}
