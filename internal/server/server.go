package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"studio/internal/analytics"
	"studio/internal/auth"
	"studio/internal/cache"
	"studio/internal/config"
	"studio/internal/cost"
	"studio/internal/logging"
	"studio/internal/metrics"
	"studio/internal/ratelimit"
	"studio/internal/scripts"
	"studio/internal/store"
	"studio/internal/users"
)

// Options wires the HTTP server to its services.
type Options struct {
	Config    *config.Config
	Store     store.Store
	Issuer    *auth.Issuer
	Users     *users.Service
	Generator *scripts.Generator
	Analytics *analytics.Service
	Cost      *cost.Analyzer
	Limiter   *ratelimit.Limiter
	Cache     *cache.Cache
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server exposes the studio API over HTTP.
type Server struct {
	cfg       *config.Config
	store     store.Store
	issuer    *auth.Issuer
	users     *users.Service
	generator *scripts.Generator
	analytics *analytics.Service
	cost      *cost.Analyzer
	limiter   *ratelimit.Limiter
	cache     *cache.Cache
	metrics   *metrics.Metrics
	logger    *slog.Logger
	openapi   []byte
	now       func() time.Time

	handler http.Handler
}

// New validates options and assembles the router and middleware chain.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("config required")
	case opts.Store == nil:
		return nil, errors.New("store required")
	case opts.Issuer == nil:
		return nil, errors.New("token issuer required")
	case opts.Users == nil, opts.Generator == nil, opts.Analytics == nil, opts.Cost == nil:
		return nil, errors.New("users, generator, analytics and cost services required")
	}
	doc, err := openAPIJSON()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       opts.Config,
		store:     opts.Store,
		issuer:    opts.Issuer,
		users:     opts.Users,
		generator: opts.Generator,
		analytics: opts.Analytics,
		cost:      opts.Cost,
		limiter:   opts.Limiter,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    logging.NewComponentLogger(opts.Logger, "http"),
		openapi:   doc,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.handler = s.chain(s.routes())
	return s, nil
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// chain wraps router innermost first. The inner recovery turns handler
// panics into a 500 that tracking, metrics and the access log still see; the
// outer one guards the middleware itself.
func (s *Server) chain(router http.Handler) http.Handler {
	h := s.recovery(router)
	h = s.limitAPICalls(h)
	h = s.trackAPICalls(h)
	h = s.authenticate(h)
	h = s.accessLog(h)
	h = s.cors(h)
	h = s.recovery(h)
	return s.requestID(h)
}

func (s *Server) routes() *mux.Router {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r := mux.NewRouter()
	r.Use(captureRoute)
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	r.HandleFunc("/", s.handleLanding).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleDocs).Methods(http.MethodGet)
	r.HandleFunc("/redoc", s.handleRedoc).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", s.handleOpenAPIJSON).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", s.handleOpenAPIYAML).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = notAllowed
	api.HandleFunc("/scripts/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/scripts", s.handleListScripts).Methods(http.MethodGet)
	api.HandleFunc("/scripts/{script_id}", s.handleGetScript).Methods(http.MethodGet)

	api.HandleFunc("/analytics/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/analytics/usage", s.handleUsage).Methods(http.MethodGet)
	api.HandleFunc("/analytics/top-users", s.handleTopUsers).Methods(http.MethodGet)
	api.HandleFunc("/analytics/export", s.handleExport).Methods(http.MethodGet)

	api.HandleFunc("/users/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/users/profile", s.handleProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	api.HandleFunc("/users/plan", s.handleChangePlan).Methods(http.MethodPut)

	api.HandleFunc("/cost/analysis", s.handleCostAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/cost/optimize", s.handleOptimize).Methods(http.MethodPost)
	return r
}
