package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfianlosari/arinventory/api/controllers"
	"github.com/alfianlosari/arinventory/api/middleware"
	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Items  controllers.ItemService
	Models controllers.ModelService
	Pinger controllers.Pinger
	// Gatherer backs /metrics. Nil falls back to the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, deps.Pinger, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/items", func(r chi.Router) {
		r.Get("/", controllers.ListItems(deps.Items, logg))
		r.Post("/", controllers.CreateItem(deps.Items, deps.Models, logg))
		r.Get("/page", controllers.PageItems(deps.Items, logg))
		r.Get("/stream", controllers.StreamItems(deps.Items, logg))

		r.Route("/{itemId}", func(r chi.Router) {
			r.Get("/", controllers.GetItem(deps.Items, logg))
			r.Put("/", controllers.UpdateItem(deps.Items, deps.Models, logg))
			r.Delete("/", controllers.DeleteItem(deps.Items, deps.Models, logg))
			r.Get("/stream", controllers.StreamItem(deps.Items, logg))
			r.Post("/quantity", controllers.AdjustQuantity(deps.Items, deps.Models, logg))
			r.Put("/model", controllers.UploadModel(deps.Items, deps.Models, cfg.Assets.MaxUploadBytes(), logg))
			r.Delete("/model", controllers.DeleteModel(deps.Items, deps.Models, logg))
		})
	})

	return r
}
