// Package api serves the lead endpoints the dashboard consumes: accounts,
// pages, lead forms, and lead download/export.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/wesm/leadvault/internal/config"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/scheduler"
)

// LeadService answers the lead calls. *service.Service implements it.
type LeadService interface {
	ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error)
	ListPages(ctx context.Context, accountID string) ([]leads.Page, error)
	ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error)
	FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error)
	ExportLeads(ctx context.Context, req leads.ExportRequest) (*leads.Payload, error)
}

// ExportScheduler defines the scheduler operations the API needs.
type ExportScheduler interface {
	Status() []scheduler.JobStatus
	TriggerRun(name string) error
	IsRunning() bool
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	svc         LeadService
	scheduler   ExportScheduler
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server. sched may be nil when no exports are
// scheduled.
func NewServer(cfg *config.Config, svc LeadService, sched ExportScheduler, logger *slog.Logger) *Server {
	loc, err := cfg.Location()
	if err != nil {
		loc, _ = leads.LoadLocation(leads.DefaultTimezone)
	}
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		scheduler: sched,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(120 * time.Second))

	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	s.rateLimiter = NewRateLimiter(10, 20)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/accounts", s.handleListAccounts)
		r.Get("/pages", s.handleListPages)
		r.Post("/lead-forms", s.handleListForms)
		r.Post("/download-leads", s.handleDownloadLeads)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
		r.Post("/scheduler/run/{name}", s.handleTriggerRun)
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware accepts the key as "Authorization: Bearer <key>" or
// "X-API-Key: <key>". No key configured means no auth.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if auth := r.Header.Get("Authorization"); key == "" && auth != "" {
			key = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
