// Package devserver is a local stand-in for the upload api. It speaks the same
// session protocol and keeps committed files in a directory.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type Server struct {
	config *Config
	store  *Store
	server *http.Server
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	store, err := NewStore(config.DataDir, config.MaxSessions, config.SessionTTL)
	if err != nil {
		return nil, err
	}

	handler, err := setupRoutes(config, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	return &Server{
		config: config,
		store:  store,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Store() *Store {
	return s.store
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("devserver start", "addr", s.config.Addr, "dataDir", s.config.DataDir)
	defer slog.Info("devserver stop")

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	defer s.store.Close()
	return s.server.Shutdown(ctx)
}
