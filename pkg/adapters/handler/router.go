package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wadjakorntonsri/ns-shortener/pkg/config"
	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// Requests per minute per client IP.
const (
	rateAPI     = 100
	rateHealth  = 1000
	rateResolve = 50
)

// Services are the collaborators the router dispatches to.
type Services struct {
	URLs        ports.URLService
	Namespaces  ports.NamespaceService
	Analytics   ports.AnalyticsService
	Resolver    ports.Resolver
	Permissions ports.PermissionCheck
	// Health reports readiness of the durable store; nil means always ready.
	Health func(*http.Request) error
}

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, svc Services) http.Handler {
	// Initialize Handlers
	uh := NewURLHandler(svc.URLs, svc.Namespaces)
	nh := NewNamespaceHandler(svc.Namespaces)
	ah := NewAnalyticsHandler(svc.Analytics, svc.Namespaces)
	ch := NewCacheHandler(svc.URLs)
	rh := NewResolveHandler(svc.Resolver)

	// Initialize Middleware
	mw := NewMiddleware(cfg.Security.JWTSecret, svc.Permissions)
	limit := func(n int) func(http.Handler) http.Handler {
		if cfg.Security.RateLimitDisabled {
			return func(next http.Handler) http.Handler { return next }
		}
		return httprate.Limit(n, time.Minute,
			httprate.WithKeyFuncs(clientIPKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			}),
		)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(limit(rateHealth))
		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			if svc.Health != nil {
				if err := svc.Health(req); err != nil {
					respond(w, http.StatusServiceUnavailable, "unavailable", map[string]string{"database": err.Error()})
					return
				}
			}
			respond(w, http.StatusOK, "ok", nil)
		})
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Group(func(r chi.Router) {
		r.Use(limit(rateResolve))
		r.Get("/api/resolve/{namespace}/{shortcode}", rh.Resolve)
		r.Get("/{namespace}/{shortcode}", rh.Redirect)
	})

	// Protected Routes (management API)
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Security.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(limit(rateAPI))
		r.Use(mw.AuthMiddleware)

		r.Route("/organizations/{org_id}", func(r chi.Router) {
			r.With(mw.Require(domain.PermURLRead)).Get("/namespaces", nh.List)
			r.With(mw.Require(domain.PermNamespaceEdit)).Post("/namespaces", nh.Create)

			r.Route("/namespaces/{namespace}", func(r chi.Router) {
				r.With(mw.Require(domain.PermNamespaceAdmin)).Patch("/", nh.Rename)

				r.With(mw.Require(domain.PermURLRead)).Get("/urls", uh.List)
				r.With(mw.Require(domain.PermURLWrite)).Post("/urls", uh.Create)
				r.With(mw.Require(domain.PermURLWrite)).Post("/urls/bulk", uh.BulkCreate)
				r.With(mw.Require(domain.PermURLRead)).Get("/urls/{shortcode}", uh.Get)
				r.With(mw.Require(domain.PermURLWrite)).Patch("/urls/{shortcode}", uh.Update)
				r.With(mw.Require(domain.PermURLWrite)).Delete("/urls/{shortcode}", uh.Delete)

				r.With(mw.Require(domain.PermAnalyticsRead)).Get("/urls/{shortcode}/analytics", ah.URL)
				r.With(mw.Require(domain.PermAnalyticsRead)).Get("/analytics", ah.Namespace)
				r.With(mw.Require(domain.PermAnalyticsRead)).Get("/analytics/realtime", ah.Realtime)
			})

			r.With(mw.Require(domain.PermAnalyticsRead)).Get("/analytics/countries", ah.Countries)
			r.With(mw.Require(domain.PermAnalyticsRead)).Get("/analytics/tiers", ah.Tiers)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Use(mw.Require(domain.PermCacheAdmin))
			r.Get("/hot", ch.Hot)
			r.Get("/stats", ch.Stats)
			r.Delete("/", ch.Clear)
		})
	})

	return r
}
