// Package server provides the HTTP and WebSocket surface of the mudra demo.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	Hub       *Hub
}

// Server is the HTTP server of the demo page.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
	log    *logrus.Entry
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
		log:    logging.Component("server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if a := s.config.App; a != nil {
		api.NewDemoHandler(a).Routes(r)
		api.NewGameHandler(a).Routes(r)
		if a.Store() != nil {
			api.NewActivityHandler(a.Store()).Routes(r)
		}
		r.Handle("/stream", NewStreamHandler(a)).Methods(http.MethodGet)
	}

	if s.config.Hub != nil {
		r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Hub != nil {
		response["clients"] = s.config.Hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleWS upgrades to the event WebSocket. New clients get the current
// status and game state first.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var greeting [][]byte
	if a := s.config.App; a != nil {
		if msg, err := encode(TypeStatus, a.Status()); err == nil {
			greeting = append(greeting, msg)
		}
		if msg, err := encode(TypeGame, a.Game().Snapshot()); err == nil {
			greeting = append(greeting, msg)
		}
	}
	s.config.Hub.Serve(w, r, greeting...)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
