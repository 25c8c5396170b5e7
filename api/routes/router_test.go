package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/items"
	blobmemory "github.com/alfianlosari/arinventory/pkg/blobstore/memory"
	"github.com/alfianlosari/arinventory/pkg/config"
	docmemory "github.com/alfianlosari/arinventory/pkg/docstore/memory"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/metrics"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T) (http.Handler, *items.Repository) {
	t.Helper()
	reg := prometheus.NewRegistry()
	docs := docmemory.New()
	t.Cleanup(func() { _ = docs.Close() })
	blobs := blobmemory.New("bucket")
	repo, err := items.NewRepository(docs, blobs, items.Options{Metrics: metrics.NewRepositoryMetrics(reg)})
	require.NoError(t, err)
	pipeline, err := assets.NewPipeline(blobs, assets.Options{Metrics: metrics.NewAssetMetrics(reg)})
	require.NoError(t, err)

	cfg := &config.Config{
		App:    config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		Assets: config.AssetsConfig{MaxUploadMB: 1},
	}
	handler := NewRouter(cfg, logger.Nop(), Dependencies{
		Items:    repo,
		Models:   pipeline,
		Pinger:   pingFunc(func(context.Context) error { return nil }),
		Gatherer: reg,
	})
	return handler, repo
}

func TestRouterHealth(t *testing.T) {
	handler, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), path)
	}
}

func TestRouterItemsAndMetrics(t *testing.T) {
	handler, repo := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", bytes.NewBufferString(`{"name":"Lamp","quantity":2}`))
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/"+list[0].ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "item_writes_total"))
}

func TestRouterUnknownRoute(t *testing.T) {
	handler, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
