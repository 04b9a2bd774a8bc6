package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agromind/internal/constants"
	"agromind/internal/detection"
	"agromind/internal/errors"
	"agromind/internal/fanout"
	"agromind/internal/middleware"
	"agromind/internal/models"
	"agromind/internal/service"
	"agromind/internal/tracing"
	"agromind/internal/uploads"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components the HTTP server routes to
type Dependencies struct {
	DB       Pinger
	Messages *service.MessageService
	Groups   *service.GroupService
	Auth     *service.AuthService
	Uploads  *uploads.Store
	Detector *detection.Client
	Realtime *fanout.Handler
}

type Server struct {
	cfg     *models.Config
	deps    Dependencies
	router  *mux.Router
	limiter *middleware.RateLimiter
	logger  *logrus.Logger
	errLog  *errors.Logger
	verbose bool
	server  *http.Server
}

func NewServer(cfg *models.Config, deps Dependencies, logger *logrus.Logger, verbose bool) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		router:  mux.NewRouter(),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.Server.TrustProxy),
		logger:  logger,
		errLog:  errors.WrapLogger(logger),
		verbose: verbose,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.cfg.Server.TrustProxy))
	if s.verbose {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}
	s.router.Use(s.corsMiddleware)

	// Preflight requests for any path; the CORS middleware answers them.
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleRealtime()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/groups", s.handleListGroups()).Methods(http.MethodGet)
	api.HandleFunc("/groups", s.handleCreateGroup()).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.Handle("/groups/{id}/messages", s.limiter.Middleware(s.handleCreateMessage())).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/invite", s.handleInviteLink()).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}/qr", s.handleInviteQR()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/pin", s.handlePinMessage()).Methods(http.MethodPatch)
	api.HandleFunc("/detect", s.handleDetect()).Methods(http.MethodPost)

	auth := s.router.PathPrefix("/auth").Subrouter()
	auth.Use(s.limiter.Middleware)
	auth.HandleFunc("/send-otp", s.handleSendOTP()).Methods(http.MethodPost)
	auth.HandleFunc("/verify-otp", s.handleVerifyOTP()).Methods(http.MethodPost)

	s.router.PathPrefix(constants.UploadsURLPrefix).Handler(
		http.StripPrefix(constants.UploadsURLPrefix, noDirListing(http.FileServer(http.Dir(s.deps.Uploads.Dir())))),
	).Methods(http.MethodGet, http.MethodHead)

	if s.cfg.Server.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.Server.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes live connections and then drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Realtime != nil {
		s.deps.Realtime.Shutdown()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+tracing.RequestIDHeader)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	requestID := tracing.GetRequestID(r.Context())

	fields := logrus.Fields{
		service.LogFieldRequestID:  requestID,
		service.LogFieldStatusCode: status,
		service.LogFieldURL:        r.URL.Path,
	}
	if status >= http.StatusInternalServerError {
		s.errLog.LogError(err, "Request failed", fields)
	} else {
		s.errLog.WithError(err).WithFields(fields).Debug("Request rejected")
	}

	s.writeJSON(w, status, errors.ToHTTPResponse(err, requestID))
}
