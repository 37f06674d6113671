package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/event"
	"github.com/loomchat/loom/internal/imagegen"
	"github.com/loomchat/loom/internal/memory"
	"github.com/loomchat/loom/internal/provider"
	"github.com/loomchat/loom/internal/telemetry"
)

// modelLister is the slice of the ollama client the server needs beyond
// the Provider contract.
type modelLister interface {
	ListModels(ctx context.Context) ([]provider.ModelInfo, error)
}

// Server is the loom web UI HTTP server.
type Server struct {
	cfg      *config.Config
	mem      *memory.Manager
	prov     provider.Provider
	models   modelLister
	images   *imagegen.Client
	eventBus *event.Bus
	broker   *Broker
	metrics  *telemetry.Metrics
	logger   *telemetry.Logger
}

// New creates a new server instance. images may be nil when image
// generation is disabled.
func New(cfg *config.Config, mem *memory.Manager, prov provider.Provider, models modelLister, images *imagegen.Client, eventBus *event.Bus, metrics *telemetry.Metrics, logger *telemetry.Logger) *Server {
	broker := NewBroker(logger)
	// Register the broker as an event hook so loom events broadcast to SSE clients.
	eventBus.Register(broker)

	return &Server{
		cfg:      cfg,
		mem:      mem,
		prov:     prov,
		models:   models,
		images:   images,
		eventBus: eventBus,
		broker:   broker,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := s.setupRoutes()

	srv := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting loom web UI", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and models
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/models", s.handleListModels)

	// Sessions
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/sessions/{id}/status", s.handleSessionStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleClearSession)

	// Images
	mux.HandleFunc("POST /api/images", s.handleGenerateImage)

	// Metrics
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	// SSE events
	mux.HandleFunc("GET /api/events", s.handleSSEEvents)
	mux.HandleFunc("GET /api/events/{sessionID}", s.handleSSEEventsFiltered)

	// Static frontend (SPA fallback)
	mux.Handle("/", staticHandler())

	return mux
}

// corsMiddleware adds CORS headers for development mode.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
