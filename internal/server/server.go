package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/config"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ShutdownTimeout bounds graceful shutdown once the run context is cancelled
const ShutdownTimeout = 10 * time.Second

// Server is the relay's HTTP API server
type Server struct {
	base    BaseHandler
	cfg     *config.Config
	factory api.Factory
	runner  *task.Runner
	router  *chi.Mux
}

// NewServer creates a server that builds a document service per request with factory
func NewServer(cfg *config.Config, factory api.Factory, runner *task.Runner) *Server {
	s := &Server{
		cfg:     cfg,
		factory: factory,
		runner:  runner,
	}
	s.router = s.setupRoutes()
	return s
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(accessLog)
	router.Use(middleware.Recoverer)

	docs := NewDocumentHandler(s.runner, s.cfg.Provider)

	router.Get("/", docs.Root)

	router.Group(func(r chi.Router) {
		r.Use(limitBody(s.cfg.MaxUploadBytes()))
		r.Use(s.bearerAuth)

		r.Post("/upload", docs.Upload)
		r.Post("/create_folder", docs.CreateFolder)
		r.Get("/files", docs.ListFiles)
		r.Delete("/delete/{file_id}", docs.Delete)
		r.Put("/rename/{file_id}", docs.Rename)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.base.sendError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.base.sendError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return router
}

// Run serves on the configured address until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address and is then closed.
func (s *Server) Run(ctx context.Context, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting %s relay on %s", s.cfg.Provider.DisplayName(), ln.Addr())
	if ready != nil {
		ready <- ln.Addr()
		close(ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
