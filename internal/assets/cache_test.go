package assets

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmemory "github.com/alfianlosari/arinventory/pkg/blobstore/memory"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/metrics"
)

func TestCacheFileName(t *testing.T) {
	assert.Equal(t, "abc_X.usdz", CacheFileName("https://host/v0/b/bucket/o/X.usdz?alt=media&token=abc"))

	a := CacheFileName("https://host/X.usdz")
	b := CacheFileName("https://host/X.usdz")
	assert.True(t, strings.HasSuffix(a, "_X.usdz"))
	assert.NotEqual(t, a, b, "untokened urls never share a cache entry")
}

// anyURLBlobs serves the same bytes for every download URL.
type anyURLBlobs struct {
	*blobmemory.Store
	data []byte
}

func (b anyURLBlobs) Download(_ context.Context, _ string, w io.Writer) error {
	_, err := w.Write(b.data)
	return err
}

func TestCacheFileNameEscapesSeparators(t *testing.T) {
	name := CacheFileName("https://host/o/X.usdz?token=../../escaped")
	assert.Equal(t, "..%2F..%2Fescaped_X.usdz", name)
	assert.Equal(t, name, filepath.Base(name))

	name = CacheFileName(`https://host/o/X.usdz?token=..\up`)
	assert.NotContains(t, name, `\`)
}

func TestFetchLocalFileStaysInsideCacheDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "cache", "models")
	cache := NewCache(dir, anyURLBlobs{Store: blobmemory.New("bucket"), data: []byte("model")}, nil, nil)

	for _, link := range []string{
		"https://host/o/X.usdz?token=../../escaped",
		"https://host/o/X.usdz?token=..%2F..%2Fescaped",
		`https://host/o/X.usdz?token=..\..\escaped`,
	} {
		got, err := cache.FetchLocalFile(ctx, link)
		require.NoError(t, err)
		assert.Equal(t, dir, filepath.Dir(got), link)
	}

	_, err := os.Stat(filepath.Join(root, "escaped_X.usdz"))
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cache", entries[0].Name())
}

func TestFetchLocalFileHitsCacheUntilTokenChanges(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New("bucket")
	reg := prometheus.NewRegistry()
	cache := NewCache(t.TempDir(), blobs, nil, metrics.NewAssetMetrics(reg))

	require.NoError(t, blobs.Put(ctx, "X.usdz", "model/vnd.usd+zip", []byte("v1"), nil))
	url1, err := blobs.DownloadURL(ctx, "X.usdz")
	require.NoError(t, err)

	first, err := cache.FetchLocalFile(ctx, url1)
	require.NoError(t, err)
	second, err := cache.FetchLocalFile(ctx, url1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, blobs.Downloads("X.usdz"))
	assert.Equal(t, filepath.Join(cache.Dir(), CacheFileName(url1)), first)

	body, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))

	require.NoError(t, blobs.Put(ctx, "X.usdz", "model/vnd.usd+zip", []byte("v2"), nil))
	url2, err := blobs.DownloadURL(ctx, "X.usdz")
	require.NoError(t, err)

	third, err := cache.FetchLocalFile(ctx, url2)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, blobs.Downloads("X.usdz"))
	body, err = os.ReadFile(third)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))

	assert.Equal(t, 1.0, counterValue(t, reg, "asset_cache_lookups_total", "result", metrics.CacheHit))
	assert.Equal(t, 2.0, counterValue(t, reg, "asset_cache_lookups_total", "result", metrics.CacheMiss))
}

func TestFetchLocalFileDownloadFailureLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New("bucket")
	cache := NewCache(t.TempDir(), blobs, nil, nil)

	_, err := cache.FetchLocalFile(ctx, "mem://bucket/missing.usdz?token=nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))

	entries, err := os.ReadDir(cache.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
