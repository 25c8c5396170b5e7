package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/alfianlosari/arinventory/pkg/blobstore"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/metrics"
)

// cacheNameEscaper keeps both halves of a cache name a single path element.
var cacheNameEscaper = strings.NewReplacer("/", "%2F", "\\", "%5C")

// CacheFileName derives the local cache name of a model URL:
// "{token}_{filename}". URLs without a token get a random one, so they never
// hit the cache. Path separators in either part are escaped.
func CacheFileName(modelURL string) string {
	token, ok := blobstore.TokenFromURL(modelURL)
	if !ok {
		token = uuid.NewString()
	}
	return cacheNameEscaper.Replace(token) + "_" + cacheNameEscaper.Replace(blobstore.FileName(modelURL))
}

// entryPath joins name onto the cache directory and fails unless the result
// is a direct child of it.
func (c *Cache) entryPath(name string) (string, error) {
	target := filepath.Join(c.dir, name)
	rel, err := filepath.Rel(c.dir, target)
	if err != nil || rel != filepath.Base(target) || rel == ".." || rel == "." {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "model url does not map to a cache entry").
			WithDetails(map[string]any{"name": name})
	}
	return target, nil
}

// Cache is a flat directory of downloaded models keyed by CacheFileName.
// Entries are never evicted.
type Cache struct {
	dir     string
	blobs   blobstore.Store
	logg    *logger.Logger
	metrics *metrics.AssetMetrics
}

func NewCache(dir string, blobs blobstore.Store, logg *logger.Logger, m *metrics.AssetMetrics) *Cache {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cache{dir: cacheDirOrDefault(dir), blobs: blobs, logg: logg, metrics: m}
}

func (c *Cache) Dir() string {
	return c.dir
}

// FetchLocalFile returns the cached path for modelURL, downloading it first
// when absent. Downloads land in a temp file that is renamed into place.
func (c *Cache) FetchLocalFile(ctx context.Context, modelURL string) (string, error) {
	target, err := c.entryPath(CacheFileName(modelURL))
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		c.metrics.ObserveCacheLookup(true)
		return target, nil
	}
	c.metrics.ObserveCacheLookup(false)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "prepare model cache")
	}
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cache file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	ctx = c.logg.WithField(ctx, "cache_file", target)
	if err := c.blobs.Download(ctx, modelURL, tmp); err != nil {
		cleanup()
		return "", pkgerrors.Storage(err, "download model")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flush cache file")
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "commit cache file")
	}
	c.logg.Debug(ctx, "model cached")
	return target, nil
}
