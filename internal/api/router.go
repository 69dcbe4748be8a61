package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/api/handlers"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/composite-service/middleware"
)

type Deps struct {
	Config    *config.Config
	Service   handlers.CompositeService
	Checkers  []handlers.ReadinessChecker
	Redis     *redis.Client // optional; enables the shared rate limiter
	ServiceID string
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	r := chi.NewRouter()

	// 1. Middleware
	r.Use(middleware.Tracing(d.ServiceID))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.HeaderXRequestID, middleware.HeaderXGroup},
			ExposedHeaders: []string{middleware.HeaderXRequestID},
			MaxAge:         300,
		}))
	}

	// 2. Health and metrics endpoints stay outside rate limiting and auth
	z := handlers.NewReadinessHandler(d.Checkers...)
	r.Get("/healthz", z.Healthz)
	r.Get("/readyz", z.Readyz)
	r.Handle("/metrics", metrics.Handler())

	// 3. Composite API
	h := handlers.NewCompositeHandler(d.Service)
	auth := middleware.NewAuth(cfg.JWTSecret)

	r.Group(func(r chi.Router) {
		if cfg.RLEnabled {
			r.Use(rateLimiter(cfg, d.Redis))
		}
		r.Use(auth.Authenticate)

		r.With(auth.RequireScope(middleware.ScopeRead)).Get("/product-composite/{productId}", h.GetAggregate)
		r.With(auth.RequireScope(middleware.ScopeWrite)).Post("/product-composite", h.CreateAggregate)
		r.With(auth.RequireScope(middleware.ScopeWrite)).Delete("/product-composite/{productId}", h.DeleteAggregate)
	})

	return r
}

// rateLimiter prefers the Redis sliding window shared across instances and
// falls back to a per-process limiter.
func rateLimiter(cfg *config.Config, rdb *redis.Client) func(http.Handler) http.Handler {
	if rdb != nil {
		return middleware.NewRedisRateLimiter(rdb).Middleware(middleware.RateLimitConfig{
			Limit:  cfg.RLLimit,
			Window: cfg.RLWindow,
			KeyFn:  middleware.KeyByIP,
		})
	}
	return httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow)
}
