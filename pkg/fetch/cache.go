package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
)

// Cacher stores page bodies. GetSet must call fetch at most once for
// concurrent callers of the same key, and must not store failed fetches.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// PageCache wraps sfcache for profile page bodies. It is meant for replaying
// a roster offline; live leaderboards fetch uncached.
type PageCache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// NewPageCache returns the on-disk page store used by --page-cache-ttl, so a
// roster can be re-scored later without hitting the profile site again.
func NewPageCache(ttl time.Duration) (*PageCache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewPageCacheWithPath(ttl, filepath.Join(cacheDir, "arcadeboard"))
}

// NewPageCacheWithPath keeps replayable pages in cachePath.
func NewPageCacheWithPath(ttl time.Duration, cachePath string) (*PageCache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	store, err := localfs.New[string, []byte]("arcadeboard", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](store, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &PageCache{TieredCache: tc, ttl: ttl}, nil
}

// NewMemoryPageCache dedups page fetches for one process lifetime only.
func NewMemoryPageCache(ttl time.Duration) *PageCache {
	tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte](), sfcache.TTL(ttl))
	if err != nil {
		panic("sfcache.NewTiered with null store: " + err.Error())
	}
	return &PageCache{TieredCache: tc, ttl: ttl}
}

// TTL returns the default TTL for cached pages.
func (c *PageCache) TTL() time.Duration {
	return c.ttl
}

// URLToKey converts a URL to a cache key using SHA256.
func URLToKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(hash[:])
}
