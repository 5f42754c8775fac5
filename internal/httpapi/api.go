package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"counselhub.org/internal/audit"
	"counselhub.org/internal/auth"
	"counselhub.org/internal/booking"
	"counselhub.org/internal/obs"
	"counselhub.org/internal/policy"
)

// ReadyProbe verifies the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API's collaborators. Everything is immutable after New.
type Config struct {
	Version       string
	AuthService   *auth.Service
	Resolver      *auth.Resolver
	Scheduler     booking.Service
	Engine        *policy.Engine
	Recorder      *audit.Recorder
	ReadyProbe    ReadyProbe
	SecureCookies bool

	// Rate limit per client IP; zero values fall back to defaults. Login gets
	// its own, much tighter bucket to slow credential stuffing.
	RateBurst          int
	RatePerSecond      int
	LoginRateBurst     int
	LoginRatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux                *http.ServeMux
	authSvc            *auth.Service
	resolver           *auth.Resolver
	scheduler          booking.Service
	engine             *policy.Engine
	recorder           *audit.Recorder
	readyProbe         ReadyProbe
	version            string
	secureCookies      bool
	rateBurst          int
	ratePerSecond      int
	loginRateBurst     int
	loginRatePerSecond int
}

// New constructs the API and registers routes.
func New(cfg Config) *API {
	a := &API{
		mux:                http.NewServeMux(),
		authSvc:            cfg.AuthService,
		resolver:           cfg.Resolver,
		scheduler:          cfg.Scheduler,
		engine:             cfg.Engine,
		recorder:           cfg.Recorder,
		readyProbe:         cfg.ReadyProbe,
		version:            cfg.Version,
		secureCookies:      cfg.SecureCookies,
		rateBurst:          cfg.RateBurst,
		ratePerSecond:      cfg.RatePerSecond,
		loginRateBurst:     cfg.LoginRateBurst,
		loginRatePerSecond: cfg.LoginRatePerSecond,
	}
	if a.recorder == nil {
		a.recorder = audit.NewRecorder(nil)
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 20
	}
	if a.loginRateBurst <= 0 {
		a.loginRateBurst = 10
	}
	if a.loginRatePerSecond <= 0 {
		a.loginRatePerSecond = 2
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// Login carries its own per-IP bucket on top of the global limiter.
	a.mux.Handle("/auth/login",
		RateLimit(http.HandlerFunc(a.handleLogin), a.loginRateBurst, a.loginRatePerSecond))
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/me", a.handleMe)
	a.mux.HandleFunc("/auth/register", a.handleRegister)

	a.mux.HandleFunc("/bookings", a.handleBookingsCollection)
	a.mux.HandleFunc("/bookings/", a.handleBookingResource)

	// Page rendering lives in the portal layer; the core only owns APIs.
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuthorize(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "counselhub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "counselhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
