package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/alfianlosari/arinventory/api/responses"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

const readyTimeout = 3 * time.Second

// Pinger reports whether the backing stores are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ARInventory-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(env string, pinger Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ARInventory-Env", env)
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backends not ready").
					WithDetails(map[string]string{"error": err.Error()}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
