package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/analysis"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/broadcast"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/config"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/live"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/registry"
)

// pinger is the minimal dependency health checks need.
type pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies carries the wired components the server dispatches into.
type Dependencies struct {
	Registry      *registry.Registry
	Hub           *broadcast.Hub
	Machine       *live.Machine
	Pipeline      *analysis.Pipeline
	Presentations domain.PresentationRepository
	Questions     domain.QuestionRepository
	Responses     domain.ResponseRepository
	Authorizer    domain.Authorizer

	// Postgres is required for readiness; Redis may be nil when the
	// debounce window is disabled.
	Postgres pinger
	Redis    pinger
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	deps      Dependencies
	startTime time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		deps:      deps,
		startTime: time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
