package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adsynchq/adsync-backend/api/controllers"
	"github.com/adsynchq/adsync-backend/api/middleware"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

// NewRouter builds the operator surface: health probes, Prometheus metrics,
// and the manual sync trigger.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry *prometheus.Registry,
	syncService controllers.SyncService,
	runs controllers.RunsRepository,
	readiness map[string]controllers.Pinger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/syncs", func(r chi.Router) {
		r.Post("/", controllers.TriggerSync(syncService, logg))
		r.Get("/latest", controllers.LatestSync(runs, logg))
	})

	return r
}
