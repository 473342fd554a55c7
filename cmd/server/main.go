package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/analysis"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/auth"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/broadcast"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/config"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/database"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/live"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/nlp"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/logging"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/redis"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/registry"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupAnalyzer(cfg *config.Config) domain.Analyzer {
	if cfg.NLPAPIURL == "" {
		slog.Warn("No NLP provider configured, analysis will be recorded as failed")
		return nlp.Disabled{}
	}
	return nlp.NewClient(cfg.NLPAPIURL, cfg.NLPAPIKey, cfg.NLPProvider, cfg.NLPTimeout)
}

func setupDeduper(cfg *config.Config, redisClient *redis.Client, clock clockwork.Clock) analysis.Deduper {
	if cfg.SubmitDebounceWindow <= 0 {
		return nil
	}
	if redisClient != nil {
		return redisClient.Debouncer(cfg.SubmitDebounceWindow)
	}
	return analysis.NewMemoryDeduper(cfg.SubmitDebounceWindow, clock)
}

// audienceEvictor drops a presentation's audience connections from their
// broadcast group when the live session ends. The sockets stay open.
type audienceEvictor struct {
	registry *registry.Registry
	hub      *broadcast.Hub
}

func (e *audienceEvictor) EvictAudience(presentationID uuid.UUID) {
	group := broadcast.AudienceGroup(presentationID)
	for _, connectionID := range e.registry.EvictAudience(presentationID) {
		e.hub.Leave(connectionID, group)
	}
}

func runGracefulShutdown(srv *server.Server, pipeline *analysis.Pipeline, hub *broadcast.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		pipeline.Stop()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	presentationRepo := database.NewPresentationRepo(pool)
	questionRepo := database.NewQuestionRepo(pool)
	responseRepo := database.NewResponseRepo(pool)

	hub := broadcast.NewHub(clock)
	publisher := broadcast.NewPublisher(hub)
	reg := registry.New()

	// Every audience membership change fans the fresh count out to the
	// presenter's dashboard group.
	reg.SetAudienceChangeHandler(func(presentationID uuid.UUID, count int) {
		publisher.ToPresenter(presentationID, domain.NewEvent(domain.EventAudienceCountUpdated, domain.AudienceCountPayload{
			PresentationID: presentationID,
			Count:          count,
		}))
	})

	machine := live.NewMachine(presentationRepo, questionRepo, publisher, &audienceEvictor{registry: reg, hub: hub}, clock)

	pipeline := analysis.NewPipeline(questionRepo, responseRepo, setupAnalyzer(cfg), publisher, clock, analysis.Options{
		Workers:       cfg.AnalysisWorkers,
		QueueSize:     cfg.AnalysisQueueSize,
		RatePerSecond: cfg.SubmitRatePerSecond,
		Burst:         cfg.SubmitBurst,
		Deduper:       setupDeduper(cfg, redisClient, clock),
	})

	deps := server.Dependencies{
		Registry:      reg,
		Hub:           hub,
		Machine:       machine,
		Pipeline:      pipeline,
		Presentations: presentationRepo,
		Questions:     questionRepo,
		Responses:     responseRepo,
		Authorizer:    auth.NewJWTAuthorizer(cfg.JWTSecret),
		Postgres:      pool,
	}
	// Assigned only when non-nil to avoid a typed-nil interface
	if redisClient != nil {
		deps.Redis = redisClient
	}

	srv := server.NewServer(cfg, deps)

	done := runGracefulShutdown(srv, pipeline, hub)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
