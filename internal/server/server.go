// internal/server/server.go

// Package server assembles the HTTP router: middleware, health, metrics and
// the member routes.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"memberhub/internal/membership"
	"memberhub/internal/telemetry"
	"memberhub/internal/utils"
)

const healthMessage = "Member Management System is running"

const healthTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options configures the router.
type Options struct {
	Members *membership.Handler
	Logger  *zap.Logger
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	// Development exposes panic detail in 500 responses.
	Development bool
	// Now stamps health responses. Defaults to time.Now.
	Now func() time.Time
}

// NewRouter returns the service's root handler.
func NewRouter(opts Options) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recoverer(logger, opts.Development))
	r.Use(telemetry.HTTPMiddleware())

	r.NotFound(routeNotFound)
	r.MethodNotAllowed(routeNotFound)

	r.Get("/health", healthHandler(now))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Members != nil {
		opts.Members.Routes(r)
	}
	return r
}

// healthResponse is not wrapped in the envelope.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

func healthHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, healthResponse{
			Status:    "OK",
			Timestamp: now().UTC().Format(healthTimeFormat),
			Message:   healthMessage,
		})
	}
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithError(w, http.StatusNotFound, "Route not found")
}

// Endpoints lists "METHOD /pattern" for every registered route.
func Endpoints(routes chi.Routes) []string {
	var out []string
	_ = chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if len(route) > 1 && route[len(route)-1] == '/' {
			route = route[:len(route)-1]
		}
		out = append(out, method+" "+route)
		return nil
	})
	return out
}
