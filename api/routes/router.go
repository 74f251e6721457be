package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/quizlink-backend/api/controllers"
	"github.com/angelmondragon/quizlink-backend/api/middleware"
	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/db"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/redis"
)

// Services bundles the domain readers and the sync orchestrator the API serves.
type Services struct {
	Sync         controllers.SyncService
	Summaries    controllers.SummaryReader
	Attributions controllers.AttributionReader
	Sessions     controllers.SessionReader
}

// NewRouter wires the HTTP surface. redisClient may be nil, in which case the
// readiness probe skips redis and manual sync triggers are not throttled.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	svc Services,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
	)

	var redisPinger redis.Pinger
	triggerLimit := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		redisPinger = redisClient
		policy := middleware.NewSyncRateLimitPolicy(cfg.Sync.TriggerWindow, cfg.Sync.TriggerLimit)
		triggerLimit = middleware.SyncRateLimit(policy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/shops/{shopId}", func(r chi.Router) {
			r.With(triggerLimit).Post("/sync", controllers.SyncTrigger(svc.Sync, logg))
			r.Get("/sync", controllers.SyncStatus(svc.Sync, logg))
			r.Get("/analytics", controllers.ShopAnalytics(svc.Summaries, logg))
			r.Get("/attributions", controllers.ShopAttributions(svc.Attributions, logg))
		})
		r.Get("/sessions/{sessionId}/answers", controllers.SessionAnswers(svc.Sessions, logg))
	})

	return r
}
