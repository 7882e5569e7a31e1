package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/backend/factory"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/export"
	exportgoogle "bilancio/internal/export/google"
	apphttp "bilancio/internal/http"
	"bilancio/internal/jobs"
	"bilancio/internal/log"
	"bilancio/internal/summary"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	result, err := factory.Create(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	loader := summary.NewLoader(result.Backend, logger, summary.Options{
		PageSize:  cfg.TransactionPageSize,
		CacheSize: cfg.SummaryCacheSize,
		CacheTTL:  cfg.SummaryCacheTTL,
	})

	// Periodic eviction of expired summaries.
	cacheManager := cache.NewManager()
	cacheManager.Register(loader.Cache())
	cacheManager.StartCleanup(10 * time.Minute)

	// Event publishing is optional; without an AMQP URL invalidations stay
	// local. With one, a consumer also drops cached summaries when another
	// instance finishes a categorization job.
	var events *amqp.Client
	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("failed to initialize amqp client", log.FieldError, err)
			os.Exit(1)
		}
		go func() {
			err := events.ConsumeCategorizationCompleted(consumeCtx, func(msg *amqp.CategorizationCompletedMessage) error {
				logger.Info("categorization completed elsewhere, dropping cached summaries",
					"job_id", msg.JobID, "categorized_count", msg.CategorizedCount)
				loader.Invalidate()
				return nil
			})
			if err != nil && consumeCtx.Err() == nil {
				logger.Warn("completion consumer stopped", log.FieldError, err)
			}
		}()
	}

	// The completion hook closes over the orchestrator it configures, so the
	// variable is declared before construction.
	var orch *jobs.Orchestrator
	orch = jobs.NewOrchestrator(result.Backend, logger, jobs.Options{
		PollInterval: cfg.JobPollInterval,
		OnCompleted: func(ctx context.Context) {
			loader.Invalidate()
			if events == nil {
				return
			}
			snap := orch.Snapshot()
			if err := events.PublishCategorizationCompleted(ctx, snap.JobID, snap.CategorizedCount, snap.TransactionIDs); err != nil {
				logger.Warn("failed to publish completion event", log.FieldError, err)
			}
		},
	})

	var exporter export.SummaryWriter
	if cfg.GoogleSpreadsheetID != "" {
		exporter, err = exportgoogle.NewFromConfig(ctx, *cfg)
		if err != nil {
			logger.Error("failed to initialize sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("sheet export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	deps := apphttp.Deps{
		Loader:       loader,
		Orchestrator: orch,
		Backend:      result.Backend,
		Exporter:     exporter,
		Logger:       logger,
	}
	if events != nil {
		deps.Events = events
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		orch.Cancel()
		stopConsumer()
		cacheManager.Stop()

		stopCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err)
		}
		if events != nil {
			if err := events.Close(); err != nil {
				logger.Warn("amqp close error", log.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("starting bilancio server",
		"port", cfg.Port, "backend", cfg.DataBackend, log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
