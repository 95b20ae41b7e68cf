/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the player's local status API: health, metrics,
// the schedule and TV state, recent plays, buffered logs, and a websocket
// that streams events and accepts commands.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/eventbus"
	"github.com/friendsincode/marquee/internal/events"
	"github.com/friendsincode/marquee/internal/logbuffer"
	"github.com/friendsincode/marquee/internal/models"
	"github.com/friendsincode/marquee/internal/scheduler"
	"github.com/friendsincode/marquee/internal/scheduler/state"
	"github.com/friendsincode/marquee/internal/telemetry"
	"github.com/friendsincode/marquee/internal/tv"
	"github.com/friendsincode/marquee/internal/version"
)

// SlotLister reads the stored schedule.
type SlotLister interface {
	ListSlots(ctx context.Context) ([]models.ScheduleSlot, error)
}

// SchedulerView exposes the playlist state.
type SchedulerView interface {
	Snapshot() scheduler.Snapshot
}

// TVStatus reports the display state.
type TVStatus interface {
	Status(ctx context.Context) tv.Status
}

// UpdateInfo reports the release check.
type UpdateInfo interface {
	Info() version.UpdateInfo
}

// Dependencies are the components the API reads from. Nil members are
// reported as absent.
type Dependencies struct {
	Slots     SlotLister
	Scheduler SchedulerView
	TV        TVStatus
	History   *state.Store
	Logs      *logbuffer.Buffer
	Updates   UpdateInfo
	Bus       *events.Bus
	// Commands handles commands received over HTTP or the websocket. Nil
	// disables command input.
	Commands eventbus.Handler
}

// Server is the local status API.
type Server struct {
	deps       Dependencies
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	now        func() time.Time
}

// New builds the router and HTTP server for addr.
func New(addr string, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "server").Logger(),
		now:    time.Now,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("marquee-status"))
	router.Use(telemetry.MetricsMiddleware)
	s.router = router
	s.routes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/schedule", s.handleSchedule)
		r.Get("/tv", s.handleTV)
		r.Get("/history", s.handleHistory)
		r.Get("/logs", s.handleLogs)
		r.Post("/commands", s.handleCommand)
		r.Get("/events", s.handleEvents)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status api listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("status api shutdown")
		return err
	}
	return nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
