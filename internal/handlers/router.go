package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/civiclens/civiclens-go/internal/correlation"
	"github.com/civiclens/civiclens-go/internal/metrics"
	"github.com/civiclens/civiclens-go/internal/ratelimit"
)

// Routes collects the handlers served by the API. Complaints, Accounts,
// Stream and RequireAuth are nil when no database is configured.
type Routes struct {
	Predict     *PredictHandler
	Labels      *LabelsHandler
	Health      *HealthHandler
	PredictWS   http.Handler
	Complaints  *ComplaintHandler
	Accounts    *AccountHandler
	Stream      *StreamHandler
	RequireAuth func(http.Handler) http.Handler
	Limiter     *ratelimit.Limiter
	HTTPMetrics *metrics.HTTPMetrics
	Metrics     http.Handler
	CORSOrigin  string
}

// NewRouter builds the chi router.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(correlation.Middleware)
	r.Use(middleware.Recoverer)
	if rt.HTTPMetrics != nil {
		r.Use(rt.HTTPMetrics.Middleware)
	}
	r.Use(corsMiddleware(rt.CORSOrigin))

	r.Get("/ping", rt.Health.Ping)
	r.Get("/healthz", rt.Health.Healthz)
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}

	r.Post("/predict", rt.Predict.Predict)
	r.Post("/v1/predict", rt.Predict.Predict)
	r.Get("/v1/labels", rt.Labels.List)
	if rt.PredictWS != nil {
		r.Handle("/ws/predict", rt.PredictWS)
	}

	if rt.Accounts != nil {
		r.Group(func(a chi.Router) {
			if rt.Limiter != nil {
				a.Use(rt.Limiter.Middleware("auth"))
			}
			a.Post("/v1/auth/signup", rt.Accounts.Signup)
			a.Post("/v1/auth/login", rt.Accounts.Login)
		})
	}

	if rt.Complaints != nil && rt.RequireAuth != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(rt.RequireAuth)

			if rt.Accounts != nil {
				api.Get("/me", rt.Accounts.Me)
				api.Patch("/me", rt.Accounts.UpdateMe)
				api.Put("/me", rt.Accounts.UpdateMe)
				api.Post("/auth/logout", rt.Accounts.Logout)
			}

			api.Group(func(c chi.Router) {
				if rt.Limiter != nil {
					c.Use(rt.Limiter.Middleware("complaints"))
				}
				c.Post("/complaints", rt.Complaints.Create)
				c.Get("/complaints", rt.Complaints.List)
				c.Get("/complaints/{id}", rt.Complaints.Get)
				c.Patch("/complaints/{id}", rt.Complaints.Update)
				c.Delete("/complaints/{id}", rt.Complaints.Delete)
			})

			if rt.Stream != nil {
				api.Group(func(s chi.Router) {
					if rt.Limiter != nil {
						s.Use(rt.Limiter.Middleware("stream"))
					}
					s.Get("/stream/complaints", rt.Stream.HandleSSE)
				})
			}
		})
	}

	return r
}

// corsMiddleware adds CORS headers for the configured origin.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			if origin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
