// Package backend selects and bootstraps the document and blob stores named
// by configuration, and wires the domain services on top of them.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/items"
	"github.com/alfianlosari/arinventory/pkg/blobstore"
	blobmemory "github.com/alfianlosari/arinventory/pkg/blobstore/memory"
	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/docstore"
	docmemory "github.com/alfianlosari/arinventory/pkg/docstore/memory"
	docmongo "github.com/alfianlosari/arinventory/pkg/docstore/mongo"
	docredis "github.com/alfianlosari/arinventory/pkg/docstore/redis"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/metrics"
	pkgmongo "github.com/alfianlosari/arinventory/pkg/mongo"
	pkgredis "github.com/alfianlosari/arinventory/pkg/redis"
	"github.com/alfianlosari/arinventory/pkg/storage/gcs"
	"github.com/alfianlosari/arinventory/pkg/storage/s3"
)

// Backend owns the selected stores and every connection behind them.
type Backend struct {
	Documents  docstore.Store
	Blobs      blobstore.Store
	Collection string

	closers []func() error
}

// New connects the configured backends. On failure everything opened so far
// is released.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (_ *Backend, err error) {
	if logg == nil {
		logg = logger.Nop()
	}
	b := &Backend{Collection: cfg.Backend.Collection}
	defer func() {
		if err != nil {
			err = multierr.Append(err, b.Close())
		}
	}()

	if b.Documents, err = b.openDocuments(ctx, cfg, logg); err != nil {
		return nil, err
	}
	if b.Blobs, err = b.openBlobs(ctx, cfg, logg); err != nil {
		return nil, err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"document_store": cfg.Backend.Documents,
		"blob_store":     cfg.Backend.Blobs,
	}), "backends ready")
	return b, nil
}

func (b *Backend) openDocuments(ctx context.Context, cfg *config.Config, logg *logger.Logger) (docstore.Store, error) {
	switch strings.ToLower(cfg.Backend.Documents) {
	case "", config.DocumentStoreMemory:
		store := docmemory.New()
		b.onClose(store.Close)
		return store, nil
	case config.DocumentStoreMongo:
		client, err := pkgmongo.New(ctx, cfg.Mongo, logg)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		b.onClose(client.Close)
		store := docmongo.New(client.Database(), client)
		b.onClose(store.Close)
		return store, nil
	case config.DocumentStoreRedis:
		client, err := pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.onClose(client.Close)
		store := docredis.New(client)
		b.onClose(store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported document store %q", cfg.Backend.Documents)
	}
}

func (b *Backend) openBlobs(ctx context.Context, cfg *config.Config, logg *logger.Logger) (blobstore.Store, error) {
	switch strings.ToLower(cfg.Backend.Blobs) {
	case "", config.BlobStoreMemory:
		return blobmemory.New(cfg.GCS.BucketName), nil
	case config.BlobStoreGCS:
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, cfg.Emulator, logg)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		b.onClose(client.Close)
		return client, nil
	case config.BlobStoreS3:
		store, err := s3.New(ctx, cfg.S3, logg)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported blob store %q", cfg.Backend.Blobs)
	}
}

// onClose registers a release hook. Hooks run in reverse order.
func (b *Backend) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Ping checks both stores and reports every failure.
func (b *Backend) Ping(ctx context.Context) error {
	var err error
	if b.Documents != nil {
		err = multierr.Append(err, wrapPing("document store", b.Documents.Ping(ctx)))
	}
	if b.Blobs != nil {
		err = multierr.Append(err, wrapPing("blob store", b.Blobs.Ping(ctx)))
	}
	return err
}

func wrapPing(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// Close releases everything New opened. It is safe to call more than once.
func (b *Backend) Close() error {
	if b == nil {
		return nil
	}
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	b.closers = nil
	return err
}

// Services are the domain components every binary builds on.
type Services struct {
	Repository *items.Repository
	Pipeline   *assets.Pipeline
	Cache      *assets.Cache
	Renderer   *assets.RenderableLoader
}

// Services wires the repository and asset pipeline. A nil registerer
// disables metrics.
func (b *Backend) Services(cfg config.AssetsConfig, logg *logger.Logger, reg prometheus.Registerer) (*Services, error) {
	assetMetrics := metrics.NewAssetMetrics(reg)
	repo, err := items.NewRepository(b.Documents, b.Blobs, items.Options{
		Collection: b.Collection,
		Logger:     logg,
		Metrics:    metrics.NewRepositoryMetrics(reg),
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := assets.NewPipeline(b.Blobs, assets.Options{
		Thumbnailer: assets.NewUSDZThumbnailer(cfg),
		Logger:      logg,
		Metrics:     assetMetrics,
	})
	if err != nil {
		return nil, err
	}
	return &Services{
		Repository: repo,
		Pipeline:   pipeline,
		Cache:      assets.NewCache(cfg.CacheDir, b.Blobs, logg, assetMetrics),
		Renderer:   assets.NewRenderableLoader(logg),
	}, nil
}
