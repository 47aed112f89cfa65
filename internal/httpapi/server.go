package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"forge/internal/downloads"
	"forge/internal/events"
	"forge/internal/modelmgr"
	"forge/internal/models"
	"forge/internal/queue"
)

// Deps bundles everything the API handlers read from. Handlers only ever
// touch these through their public methods, never the daemon itself.
type Deps struct {
	Store       *queue.Store
	Descriptors *models.Registry
	Engines     *modelmgr.Manager
	Downloads   *downloads.Coordinator
	Bus         *events.Bus
	ImagesDir   string
	Logger      *slog.Logger
}

// Server owns the listener and http.Server for the REST + websocket
// surface. It is started and stopped alongside the daemon.
type Server struct {
	bind     string
	deps     Deps
	logger   *slog.Logger
	metrics  *metricsCollector
	listener net.Listener
	server   *http.Server
}

// New builds a Server bound to bind (host:port) using deps. The router is
// constructed eagerly so routing errors surface at construction time.
func New(bind string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := newMetricsCollector(deps.Store, deps.Downloads, deps.Engines)

	s := &Server{
		bind:    bind,
		deps:    deps,
		logger:  logger,
		metrics: metrics,
	}
	s.server = &http.Server{
		Handler:           s.newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // the websocket and image routes hold connections open
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(s.metrics.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handlers{deps: s.deps, logger: s.logger}

	r.Get("/jobs", h.listJobs)
	r.Post("/jobs/{action}", h.createJob)
	r.Get("/jobs/{id}", h.getJob)
	r.Delete("/jobs/{id}", h.cancelJob)

	r.Get("/generations/{id}", h.getJob)
	r.Get("/generations/{id}/images", h.listGenerationImages)

	r.Get("/images/{id}", h.getImage)

	r.Get("/models", h.listModels)
	r.Get("/models/running", h.listRunningModels)
	r.Post("/models/download", h.startDownload)
	r.Get("/models/download/{id}", h.getDownload)
	r.Delete("/models/download/{id}", h.cancelDownload)
	r.Get("/models/{id}", h.getModel)
	r.Get("/models/{id}/status", h.getModelStatus)
	r.Post("/models/{id}/start", h.startModel)
	r.Post("/models/{id}/stop", h.stopModel)

	r.Get("/events", h.events)
	r.Get("/metrics", s.metrics.handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// Start begins listening and serving. It returns once the listener is
// bound; serving and shutdown happen in background goroutines tied to ctx.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("httpapi listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("httpapi server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("httpapi listening", "address", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the server, waiting up to 5s for in-flight
// requests (and the websocket loop) to drain.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
