package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maptitesalle/mylittlegymcoach/internal/api"
	"github.com/maptitesalle/mylittlegymcoach/internal/config"
	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/database"
	"github.com/maptitesalle/mylittlegymcoach/internal/generation"
	"github.com/maptitesalle/mylittlegymcoach/internal/llm"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/metrics"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
	"github.com/maptitesalle/mylittlegymcoach/internal/telegram"
)

const (
	shutdownTimeout  = 30 * time.Second
	statementTimeout = 30 * time.Second
)

// App holds the server's dependencies.
type App struct {
	cfg *config.Config
	log *logger.Logger

	db           *database.DB
	repo         *content.Repository
	contents     content.Store
	plans        *planner.PlanRepository
	metricsStore *metrics.Store
	registry     *prometheus.Registry
	generator    llm.TextGenerator
	supervisor   *generation.Supervisor
	coordinator  *generation.Coordinator
	sweeper      *generation.Sweeper
	bot          *telegram.Bot
	redis        *content.RedisCache
}

// New opens the stores and wires the generation pipeline.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	var err error
	if cfg.DatabaseDriver == "postgres" {
		a.db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL, log)
	} else {
		a.db, err = database.NewDB(cfg.DatabasePath, log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a.repo = content.NewRepository(a.db)
	a.contents = a.repo
	if cfg.RedisAddr != "" {
		a.redis, err = content.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.contents = content.NewCachedStore(a.repo, a.redis, log)
	}
	a.plans = planner.NewPlanRepository(a.db)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(a.registry)
	a.metricsStore = metrics.NewStore(a.db, collector, log)

	a.generator, err = llm.NewFromConfig(ctx, cfg)
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		log.Warn("No LLM credential configured, generation requests will fail", "provider", cfg.LLMProvider)
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLMProvider, err)
	}

	a.supervisor = generation.NewSupervisor(cfg.GenerationConcurrency, log)

	var notifier generation.Notifier
	if cfg.TelegramBotToken != "" {
		a.bot, err = telegram.NewBot(cfg, telegram.Deps{
			Usage:    a.metricsStore,
			Records:  a.repo,
			Tasks:    a.supervisor,
			DataPath: a.dataPath(),
			Logger:   log,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		notifier = a.bot
	}

	a.coordinator = generation.NewCoordinator(generation.Deps{
		Contents:   a.contents,
		Plans:      a.plans,
		Generator:  a.generator,
		Supervisor: a.supervisor,
		Metrics:    a.metricsStore,
		Notifier:   notifier,
		Logger:     log,
		Timeout:    cfg.GenerationTimeout,
	})
	a.sweeper = generation.NewSweeper(a.repo, cfg.StaleProcessingAfter, cfg.SweepInterval, notifier, log)

	return a, nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	if a.cfg.LogMode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	rc := api.RouterConfig{
		Coordinator: a.coordinator,
		Records:     a.contents,
		Plans:       a.plans,
		Tasks:       a.supervisor,
		Collector:   a.metricsStore.Collector(),
		Gatherer:    a.registry,
		JWTSecret:   a.cfg.JWTSecret,
		DataPath:    a.dataPath(),
		Logger:      a.log,
	}
	if a.bot != nil {
		rc.Webhook = a.bot.HandleWebhook
	}
	return api.NewRouter(rc)
}

// Run serves HTTP and sweeps stale records until ctx is done, then drains
// background generations.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.SweepStale(ctx); err != nil {
		a.log.Warn("Initial stale sweep failed", "error", err)
	}
	a.sweeper.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server listening", "port", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("Server forced to shutdown", "error", err)
	}
	if err := a.supervisor.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("Background generations cancelled", "error", err)
	}

	a.log.Info("Server exiting")
	return nil
}

// SweepStale fails records stuck in processing once.
func (a *App) SweepStale(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	return a.sweeper.SweepOnce(ctx)
}

// CleanupMetrics removes execution metrics older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	return a.metricsStore.Cleanup(ctx, days)
}

// Usage returns the LLM usage of the last days.
func (a *App) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	return a.metricsStore.GetDailyUsage(ctx, days)
}

// Close releases every resource opened by New.
func (a *App) Close() {
	if c, ok := a.generator.(llm.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("Failed to close LLM client", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

func (a *App) dataPath() string {
	if a.cfg.DatabaseDriver == "postgres" {
		return ""
	}
	return filepath.Dir(a.cfg.DatabasePath)
}
