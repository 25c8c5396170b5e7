package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alfianlosari/arinventory/api/responses"
	"github.com/alfianlosari/arinventory/api/validators"
	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/editor"
	"github.com/alfianlosari/arinventory/internal/items"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
	"github.com/alfianlosari/arinventory/pkg/pagination"
	"github.com/alfianlosari/arinventory/pkg/types"
)

const (
	maxNameLength   = 200
	maxCursorLength = 512
)

// ItemService is the item repository surface the API needs.
type ItemService interface {
	List(ctx context.Context) ([]items.InventoryItem, error)
	Get(ctx context.Context, id string) (items.InventoryItem, error)
	Save(ctx context.Context, item items.InventoryItem) error
	Delete(ctx context.Context, id string) error
	ListItems(ctx context.Context, obs items.ListObserver) (items.Subscription, error)
	ListenToItem(ctx context.Context, id string, obs items.ItemObserver) (items.Subscription, error)
}

// ModelService uploads and deletes item models.
type ModelService interface {
	UploadModel(ctx context.Context, id string, data []byte, onProgress func(assets.UploadProgress)) (assets.UploadResult, error)
	DeleteModel(ctx context.Context, id string) error
}

type itemRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Quantity int    `json:"quantity" validate:"min=0"`
}

type quantityRequest struct {
	Delta int `json:"delta" validate:"required,oneof=-1 1"`
}

// ListItems returns the ordered collection once.
func ListItems(svc ItemService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// PageItems returns one cursor page of the ordered collection.
func PageItems(svc ItemService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: validators.ParseQueryString(r, "cursor", maxCursorLength),
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, next, err := pagination.Page(list, params, itemCursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		responses.WriteSuccess(w, types.Page[items.InventoryItem]{Items: page, NextCursor: next})
	}
}

func itemCursor(item items.InventoryItem) pagination.Cursor {
	c := pagination.Cursor{ID: item.ID}
	if item.CreatedAt != nil {
		c.CreatedAt = *item.CreatedAt
	}
	return c
}

func GetItem(svc ItemService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Get(r.Context(), itemIDParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// CreateItem saves a new item through an add form. Links start absent.
func CreateItem(svc ItemService, models ModelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		form, err := editor.NewAddForm(svc, models, editor.Options{Logger: logg})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		form.SetName(validators.SanitizeString(payload.Name, maxNameLength))
		form.SetQuantity(payload.Quantity)
		if err := form.Save(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, reload(r.Context(), svc, form))
	}
}

// UpdateItem overwrites name and quantity. Links are preserved.
func UpdateItem(svc ItemService, models ModelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		form, err := editForm(r.Context(), svc, models, itemIDParam(r), logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		form.SetName(validators.SanitizeString(payload.Name, maxNameLength))
		form.SetQuantity(payload.Quantity)
		if err := form.Save(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, reload(r.Context(), svc, form))
	}
}

// AdjustQuantity steps the quantity by one. It never goes below zero.
func AdjustQuantity(svc ItemService, models ModelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		form, err := editForm(r.Context(), svc, models, itemIDParam(r), logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Delta > 0 {
			form.Increment()
		} else {
			form.Decrement()
		}
		if err := form.Save(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, reload(r.Context(), svc, form))
	}
}

// DeleteItem removes the document. Blob cleanup is best effort.
func DeleteItem(svc ItemService, models ModelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := itemIDParam(r)
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "item id is required"))
			return
		}
		form, err := editor.NewEditForm(items.InventoryItem{ID: id}, svc, models, editor.Options{Logger: logg})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := form.DeleteItem(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func itemIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "itemId"))
}

func editForm(ctx context.Context, svc ItemService, models ModelService, id string, logg *logger.Logger) (*editor.Form, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	item, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return editor.NewEditForm(item, svc, models, editor.Options{Logger: logg})
}

// reload reads the stored copy so timestamps are included. It falls back to
// the form's view of the item.
func reload(ctx context.Context, svc ItemService, form *editor.Form) items.InventoryItem {
	item, err := svc.Get(ctx, form.ID())
	if err != nil {
		return form.Item()
	}
	return item
}
