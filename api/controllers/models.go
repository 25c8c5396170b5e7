package controllers

import (
	"net/http"

	"github.com/alfianlosari/arinventory/api/responses"
	"github.com/alfianlosari/arinventory/api/validators"
	"github.com/alfianlosari/arinventory/internal/items"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

type modelUploadResponse struct {
	Item          items.InventoryItem `json:"item"`
	ProgressTicks int                 `json:"progressTicks"`
}

// UploadModel stores the raw request body as the item's model, merges the
// new links and saves the item.
func UploadModel(svc ItemService, models ModelService, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := editForm(r.Context(), svc, models, itemIDParam(r), logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		data, err := validators.ReadBody(w, r, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := form.UploadModel(r.Context(), data); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := form.Save(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, modelUploadResponse{
			Item:          reload(r.Context(), svc, form),
			ProgressTicks: form.State().ProgressTicks,
		})
	}
}

// DeleteModel removes both blobs, clears the links and saves the item. A
// failed model delete leaves the item untouched.
func DeleteModel(svc ItemService, models ModelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := editForm(r.Context(), svc, models, itemIDParam(r), logg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := form.DeleteModel(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := form.Save(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reload(r.Context(), svc, form))
	}
}
