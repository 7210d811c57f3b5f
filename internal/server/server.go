package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"postkeeper/internal/metrics"
	"postkeeper/internal/store"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	store   store.Store
	logger  *zap.Logger
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	now     func() time.Time
}

// NewServer builds the router and middleware chain. allowedOrigins is
// "*" or a comma-separated list of origins.
func NewServer(st store.Store, logger *zap.Logger, allowedOrigins string) *Server {
	s := &Server{
		store:  st,
		logger: logger,
		router: mux.NewRouter(),
		now:    time.Now,
	}
	s.routes()
	s.handler = cors(allowedOrigins, s.logRequests(s.router))
	return s
}

func (s *Server) routes() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	posts := s.router.PathPrefix("/posts").Subrouter()
	posts.HandleFunc("", s.handleCreate).Methods("POST")
	posts.HandleFunc("", s.handleList).Methods("GET")
	posts.HandleFunc("/", s.handleCreate).Methods("POST")
	posts.HandleFunc("/", s.handleList).Methods("GET")
	posts.HandleFunc("/{id}", s.handleGet).Methods("GET")
	posts.HandleFunc("/{id}", s.handleUpdate).Methods("PUT")
	posts.HandleFunc("/{id}", s.handleDelete).Methods("DELETE")
}

// ServeHTTP runs a request through the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start launches the HTTP server. It returns nil after a clean Stop.
func (s *Server) Start(port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Web server listening", zap.String("addr", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
