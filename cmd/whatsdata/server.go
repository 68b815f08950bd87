package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"whatsdata/internal/config"
	"whatsdata/internal/constants"
	apperrors "whatsdata/internal/errors"
	"whatsdata/internal/features"
	"whatsdata/internal/httputil"
	"whatsdata/internal/metrics"
	"whatsdata/internal/middleware"
	"whatsdata/internal/models"
	"whatsdata/internal/service"
	"whatsdata/internal/store"
	"whatsdata/internal/validation"
	"whatsdata/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ServerDeps are the collaborators built in run
type ServerDeps struct {
	Store    store.BlobStore
	Contacts service.ContactServiceInterface
	Messages service.MessageServiceInterface
	Files    service.FileServiceInterface
	Stats    service.StatsServiceInterface
	Flags    *features.Manager
	Limiter  *middleware.RateLimiter
	Hub      *WatchHub
	Build    versioning.BuildInfo
	Verbose  bool
}

type Server struct {
	cfg      *models.Config
	router   *mux.Router
	logger   *logrus.Logger
	errLog   *apperrors.Logger
	store    store.BlobStore
	contacts service.ContactServiceInterface
	messages service.MessageServiceInterface
	files    service.FileServiceInterface
	stats    service.StatsServiceInterface
	flags    *features.Manager
	limiter  *middleware.RateLimiter
	hub      *WatchHub
	build    versioning.BuildInfo
	started  time.Time
	server   *http.Server
}

func NewServer(cfg *models.Config, deps ServerDeps, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		logger:   logger,
		errLog:   apperrors.Wrapped(logger),
		store:    deps.Store,
		contacts: deps.Contacts,
		messages: deps.Messages,
		files:    deps.Files,
		stats:    deps.Stats,
		flags:    deps.Flags,
		limiter:  deps.Limiter,
		hub:      deps.Hub,
		build:    deps.Build,
		started:  time.Now(),
	}
	if s.flags == nil {
		s.flags = features.NewManager()
	}
	if s.limiter == nil {
		s.limiter = middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute,
			time.Duration(cfg.Server.RateLimitWindowSec)*time.Second)
	}

	s.setupRoutes()

	verbose := deps.Verbose
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout(cfg),
		WriteTimeout: config.WriteTimeout(cfg),
		IdleTimeout:  config.IdleTimeout(cfg),
		BaseContext: func(net.Listener) context.Context {
			return service.WithVerbose(context.Background(), verbose)
		},
	}
	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RecoveryMiddleware(s.logger))
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.cfg.Server.TrustedProxyHeaders))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	if s.flags.IsEnabled(features.FlagPrometheusMetrics) {
		s.router.Handle("/metrics/prometheus", metrics.PrometheusHandler()).Methods(http.MethodGet)
	}

	s.mountAPI("/" + constants.APIVersion)
	if s.flags.IsEnabled(features.FlagLegacyRoutes) {
		s.mountAPI("/api/" + constants.APIVersion)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, apperrors.New(apperrors.ErrCodeNotFound, "route not found").
			WithUserMessage(fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path)))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := httputil.NewEnvelope(respError, nil).
			With("success", false).
			With("message", fmt.Sprintf("Method %s not allowed", r.Method))
		_ = httputil.WriteJSON(w, http.StatusMethodNotAllowed, body)
	})
}

func (s *Server) mountAPI(prefix string) {
	api := s.router.PathPrefix(prefix).Subrouter()
	api.Use(versioning.Middleware(s.logger))
	api.Use(s.gate(features.FlagDetailedLogging,
		middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig())))
	api.Use(s.gate(features.FlagRateLimiting,
		middleware.RateLimitMiddleware(s.limiter, s.cfg.Server.TrustedProxyHeaders, s.logger)))
	api.Use(s.limitBody)

	api.HandleFunc("", s.handleIndex()).Methods(http.MethodGet)
	api.HandleFunc("/", s.handleIndex()).Methods(http.MethodGet)

	api.HandleFunc("/contacts", s.handleListContacts()).Methods(http.MethodGet)
	api.HandleFunc("/contacts", s.handleCreateContacts()).Methods(http.MethodPost)
	api.HandleFunc("/contacts", s.handleUpdateContact()).Methods(http.MethodPut)
	api.HandleFunc("/contacts", s.handleDeleteContact()).Methods(http.MethodDelete)

	api.HandleFunc("/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleCreateMessages()).Methods(http.MethodPost)

	api.HandleFunc("/files", s.handleListFiles()).Methods(http.MethodGet)
	api.HandleFunc("/files", s.handleSaveFile()).Methods(http.MethodPost)
	api.HandleFunc("/files", s.handleDeleteFile()).Methods(http.MethodDelete)

	api.HandleFunc("/stats", s.handleStats()).Methods(http.MethodGet)

	if s.hub != nil && s.flags.IsEnabled(features.FlagWatchFeed) {
		api.Handle("/watch", s.hub).Methods(http.MethodGet)
	}
}

// gate applies mw only while flag is enabled, so toggles take effect without a restart
func (s *Server) gate(flag string, mw func(http.Handler) http.Handler) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.flags.IsEnabled(flag) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) maxBodyBytes() int64 {
	mb := s.cfg.Server.MaxRequestBodyMB
	if mb <= 0 {
		mb = constants.DefaultMaxRequestBodyMB
	}
	return int64(mb) * constants.BytesPerMegabyte
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.Method != http.MethodGet {
			limit := s.maxBodyBytes()
			if err := validation.ValidateHTTPRequestSize(r, limit); err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// Serve runs the HTTP server under the supervisor and shuts it down
// gracefully when ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout(s.cfg))
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		s.logger.Info("HTTP server stopped")
		return ctx.Err()
	}
}

func (s *Server) String() string {
	return "http-server"
}
