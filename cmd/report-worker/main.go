package main

import (
	"context"
	"os"
	"time"

	"eventfin/internal/amqp"
	"eventfin/internal/backend"
	"eventfin/internal/cli"
	"eventfin/internal/services"
	"eventfin/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	logger.Info("Starting report-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid report backend configuration", "error", err)
		os.Exit(1)
	}
	output, err := backend.NewReportWriter(context.Background(), backendCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize report backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("AMQP disabled - relying on periodic sweeps", "interval", cfg.WorkerPollInterval)
	}

	// The worker never requests reports itself, so no publisher is needed.
	reports := services.NewReportService(repo, repo, nil)
	reportWorker := worker.NewReportWorker(repo, reports, output.Writer, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		PollInterval: cfg.WorkerPollInterval,
	})

	logger.Info("Report backend ready", "backend", output.Type)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := reportWorker.Run(ctx, consumer); err != nil {
		logger.Error("Report worker stopped", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker shutdown complete")
}
