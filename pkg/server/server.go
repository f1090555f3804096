// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the research pipeline over HTTP. Research
// sessions stream newline-delimited JSON frames; checkpoints, aborts,
// and status are plain JSON endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/deepquest/pkg/observability"
	"github.com/kadirpekel/deepquest/pkg/session"
)

// Runner drives one session to completion. The coordinator implements
// it; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, s *session.Session)
}

// Config holds the transport-level knobs.
type Config struct {
	Host              string
	Port              int
	HeartbeatInterval time.Duration

	// ReadyCheck gates new research sessions; a non-nil result is
	// reported to the client instead of starting a session. Used for
	// the missing-credential case.
	ReadyCheck func() error
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	cfg      Config
	sessions *session.Manager
	runner   Runner
	router   chi.Router
}

// New builds the server and its route table.
func New(sessions *session.Manager, runner Runner, cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		runner:   runner,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/research", s.handleResearch)
		r.Post("/checkpoint", s.handleCheckpoint)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleSessionStatus)
			r.Post("/abort", s.handleAbort)
		})
	})

	s.router = r
	return s
}

// Handler exposes the route table for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs until the context is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}
