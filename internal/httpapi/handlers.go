package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trailwatch.org/internal/alert"
	"trailwatch.org/internal/auth"
	"trailwatch.org/internal/obs"
	"trailwatch.org/internal/store"
	"trailwatch.org/internal/tracker"
)

const serviceName = "trailwatch"

// ReadinessCheck reports readiness, typically by pinging the database.
type ReadinessCheck struct {
	DB *sql.DB
}

func (rp ReadinessCheck) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Catalog serves the read side: trails, sightings and alerts.
type Catalog interface {
	ListTrails(ctx context.Context, forestID string) ([]store.Trail, error)
	Trail(ctx context.Context, id string) (store.Trail, error)
	ListSightings(ctx context.Context, trailID string, limit int) ([]tracker.Sighting, error)
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]*alert.Alert, error)
}

// Tracker records sightings and reassesses trails. *tracker.Service implements it.
type Tracker interface {
	Report(ctx context.Context, in tracker.Sighting) (*tracker.Sighting, tracker.Assessment, error)
	Reassess(ctx context.Context, trailID string) (tracker.Assessment, error)
}

// AlertAdmin is the administrator surface of *alert.Coordinator.
type AlertAdmin interface {
	CreateManual(ctx context.Context, in alert.ManualAlert, createdBy string) (*alert.Alert, error)
	Deactivate(ctx context.Context, id string) (*alert.Alert, error)
}

// Authenticator exchanges credentials for a token. *auth.Authenticator implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Token, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Catalog  Catalog
	Tracker  Tracker
	Alerts   AlertAdmin
	Login    Authenticator
	Verifier auth.Verifier
	Ready    ReadinessCheck
	Version  string
}

// Options tunes the middleware chain.
type Options struct {
	RateBurst   int
	RatePerSec  float64
	CORSOrigins []string
}

// API is the HTTP layer.
type API struct {
	deps    Deps
	router  chi.Router
	limiter *ipLimiter
}

func New(deps Deps, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}
	a := &API{deps: deps, limiter: newIPLimiter(opts.RatePerSec, opts.RateBurst)}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer, SecurityHeaders, LoggingJSON, a.limiter.middleware)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	anyUser := requireToken(auth.AnyUser(deps.Verifier))
	admin := requireToken(auth.AdminOnly(deps.Verifier))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.With(anyUser).Post("/auth/logout", a.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(anyUser)
			r.Get("/trails", a.handleListTrails)
			r.Get("/trails/{id}", a.handleGetTrail)
			r.Get("/trails/{id}/sightings", a.handleListSightings)
			r.Post("/sightings", a.handleReportSighting)
			r.Get("/alerts", a.handleListAlerts)
		})

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/trails/{id}/assess", a.handleAssessTrail)
			r.Post("/alerts", a.handleCreateAlert)
			r.Post("/alerts/{id}/deactivate", a.handleDeactivateAlert)
		})
	})

	a.router = r
	return a
}

// Handler returns the root handler wrapped with HTTP metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

// Close stops background work owned by the API.
func (a *API) Close() {
	a.limiter.Close()
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}
