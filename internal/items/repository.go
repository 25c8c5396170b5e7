package items

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alfianlosari/arinventory/pkg/blobstore"
	"github.com/alfianlosari/arinventory/pkg/docstore"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/metrics"
)

type documentStore interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
	List(ctx context.Context, collection string) ([]docstore.Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	WatchCollection(ctx context.Context, collection string, fn docstore.CollectionListener) (docstore.Subscription, error)
	WatchDocument(ctx context.Context, collection, id string, fn docstore.DocumentListener) (docstore.Subscription, error)
}

type blobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// ListObserver receives full ordered snapshots of the collection.
type ListObserver struct {
	OnUpdate func([]InventoryItem)
	OnError  func(error)
}

// ItemObserver receives changes to one item. OnDeleted fires once each time
// the item goes from present (or unknown) to absent.
type ItemObserver struct {
	OnUpdate  func(InventoryItem)
	OnDeleted func()
	OnError   func(error)
}

// Subscription is a live observer registration.
type Subscription interface {
	Cancel()
}

// Options tunes the repository. Zero values fall back to defaults.
type Options struct {
	Collection string
	Logger     *logger.Logger
	Metrics    *metrics.RepositoryMetrics
}

// Repository maps InventoryItem records onto the document store.
type Repository struct {
	docs       documentStore
	blobs      blobDeleter
	collection string
	logg       *logger.Logger
	metrics    *metrics.RepositoryMetrics
}

func NewRepository(docs documentStore, blobs blobDeleter, opts Options) (*Repository, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	collection := strings.TrimSpace(opts.Collection)
	if collection == "" {
		collection = Collection
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Repository{
		docs:       docs,
		blobs:      blobs,
		collection: collection,
		logg:       logg,
		metrics:    opts.Metrics,
	}, nil
}

// ListItems subscribes to the whole collection. Every call opens a new
// subscription; callers own cancelling it.
func (r *Repository) ListItems(ctx context.Context, obs ListObserver) (Subscription, error) {
	sub, err := r.docs.WatchCollection(ctx, r.collection, func(docs []docstore.Document, err error) {
		if err != nil {
			notify(obs.OnError, pkgerrors.Persistence(err, "listen to items"))
			return
		}
		items := make([]InventoryItem, 0, len(docs))
		for _, doc := range docs {
			item, decodeErr := fromDocument(doc)
			if decodeErr != nil {
				r.logg.WarnErr(r.logg.WithItemID(ctx, doc.ID), "skipping undecodable item", decodeErr)
				continue
			}
			items = append(items, item)
		}
		if obs.OnUpdate != nil {
			obs.OnUpdate(items)
		}
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "listen to items")
	}
	return r.track(metrics.SubscriptionList, sub), nil
}

// ListenToItem subscribes to one item.
func (r *Repository) ListenToItem(ctx context.Context, id string, obs ItemObserver) (Subscription, error) {
	var mu sync.Mutex
	deleted := false
	sub, err := r.docs.WatchDocument(ctx, r.collection, id, func(snap docstore.DocumentSnapshot, err error) {
		if err != nil {
			notify(obs.OnError, pkgerrors.Persistence(err, "listen to item"))
			return
		}
		mu.Lock()
		if !snap.Exists {
			already := deleted
			deleted = true
			mu.Unlock()
			if !already && obs.OnDeleted != nil {
				obs.OnDeleted()
			}
			return
		}
		deleted = false
		mu.Unlock()

		item, decodeErr := fromDocument(snap.Document)
		if decodeErr != nil {
			r.logg.WarnErr(r.logg.WithItemID(ctx, id), "item snapshot could not be decoded", decodeErr)
			notify(obs.OnError, decodeErr)
			return
		}
		if obs.OnUpdate != nil {
			obs.OnUpdate(item)
		}
	})
	if err != nil {
		return nil, pkgerrors.Persistence(err, "listen to item")
	}
	return r.track(metrics.SubscriptionItem, sub), nil
}

// List returns the current ordered collection once.
func (r *Repository) List(ctx context.Context) ([]InventoryItem, error) {
	docs, err := r.docs.List(ctx, r.collection)
	if err != nil {
		return nil, pkgerrors.Persistence(err, "list items")
	}
	items := make([]InventoryItem, 0, len(docs))
	for _, doc := range docs {
		item, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Get reads one item. Missing items are NOT_FOUND.
func (r *Repository) Get(ctx context.Context, id string) (InventoryItem, error) {
	doc, err := r.docs.Get(ctx, r.collection, id)
	if stdErrors.Is(err, docstore.ErrNotFound) {
		return InventoryItem{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %s not found", id))
	}
	if err != nil {
		return InventoryItem{}, pkgerrors.Persistence(err, "get item")
	}
	return fromDocument(doc)
}

// Save writes the whole item, replacing whatever was stored under its id.
func (r *Repository) Save(ctx context.Context, item InventoryItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	err := r.docs.Set(ctx, r.collection, item.ID, toFields(item))
	r.metrics.ObserveWrite("save", err)
	if err != nil {
		return pkgerrors.Persistence(err, "save item")
	}
	return nil
}

// Delete removes the document, then tries to remove both blobs. Blob
// failures are logged and ignored.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.docs.Delete(ctx, r.collection, id)
	r.metrics.ObserveWrite("delete", err)
	if err != nil {
		return pkgerrors.Persistence(err, "delete item")
	}

	ctx = r.logg.WithOperation(r.logg.WithItemID(ctx, id), "item.delete")
	var g errgroup.Group
	for _, path := range []string{ModelPath(id), ThumbnailPath(id)} {
		g.Go(func() error {
			if err := r.blobs.Delete(ctx, path); err != nil && !stdErrors.Is(err, blobstore.ErrNotFound) {
				r.logg.WarnErr(r.logg.WithBlobPath(ctx, path), "best-effort blob delete failed", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (r *Repository) track(kind string, sub docstore.Subscription) Subscription {
	r.metrics.SubscriptionStarted(kind)
	return &trackedSubscription{inner: sub, stop: func() { r.metrics.SubscriptionStopped(kind) }}
}

type trackedSubscription struct {
	inner docstore.Subscription
	once  sync.Once
	stop  func()
}

func (t *trackedSubscription) Cancel() {
	t.once.Do(func() {
		t.inner.Cancel()
		t.stop()
	})
}

func notify(fn func(error), err error) {
	if fn != nil {
		fn(err)
	}
}
