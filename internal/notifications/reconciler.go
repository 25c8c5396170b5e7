// Package notifications reacts to bucket notifications so item documents
// never point at a model that was deleted out of band.
package notifications

import (
	"context"
	"errors"

	"github.com/alfianlosari/arinventory/internal/items"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

type itemStore interface {
	Get(ctx context.Context, id string) (items.InventoryItem, error)
	Save(ctx context.Context, item items.InventoryItem) error
}

type blobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Outcome describes what a model deletion changed.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeItemMissing  Outcome = "item_missing"
	OutcomeAlreadyClean Outcome = "already_clean"
	OutcomeLinksCleared Outcome = "links_cleared"
)

// Reconciler clears item links after their model blob disappears.
type Reconciler struct {
	store itemStore
	blobs blobDeleter
	logg  *logger.Logger
}

func NewReconciler(store itemStore, blobs blobDeleter, logg *logger.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("item store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{store: store, blobs: blobs, logg: logg}, nil
}

// ModelDeleted handles the removal of blob objectName. Anything other than
// "{id}.usdz" is ignored. The thumbnail is removed best effort.
func (r *Reconciler) ModelDeleted(ctx context.Context, objectName string) (Outcome, error) {
	id, ok := items.ItemIDFromModelPath(objectName)
	if !ok {
		return OutcomeIgnored, nil
	}
	ctx = r.logg.WithOperation(r.logg.WithItemID(ctx, id), "storage.reconcile")

	outcome := OutcomeAlreadyClean
	item, err := r.store.Get(ctx, id)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		outcome = OutcomeItemMissing
	case err != nil:
		return "", err
	case item.ModelLink != nil || item.ThumbnailLink != nil:
		if err := r.store.Save(ctx, item.WithoutLinks()); err != nil {
			return "", err
		}
		outcome = OutcomeLinksCleared
	}

	thumb := items.ThumbnailPath(id)
	if err := r.blobs.Delete(ctx, thumb); err != nil {
		r.logg.WarnErr(r.logg.WithBlobPath(ctx, thumb), "thumbnail cleanup failed", err)
	}
	return outcome, nil
}
