package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type APIServer struct {
	srv *http.Server
	log *zap.Logger
}

// NewAPIServer builds the HTTP server. WriteTimeout stays zero so seat event
// streams are not cut off.
func NewAPIServer(route *chi.Mux, port string, log *zap.Logger) *APIServer {
	return &APIServer{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           route,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *APIServer) Start() error {
	s.log.Info("Server running", zap.String("addr", s.srv.Addr))

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
