package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"eventfin/internal/amqp"
	"eventfin/internal/cli"
	"eventfin/internal/currency"
	apphttp "eventfin/internal/http"
	"eventfin/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Report publishing is optional; without AMQP requests stay pending in
	// SQLite until the worker sweeps them.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - report requests will be picked up by the worker sweep")
	}

	reports := services.NewReportService(repo, repo, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Reports:                 reports,
		Store:                   repo,
		Logger:                  logger,
		DisplayCurrency:         currency.Code(cfg.DisplayCurrency),
		CacheTTL:                cfg.ReportCacheTTL,
		ReportRequestsPerMinute: cfg.ReportRequestsPerMinute,
	})

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting eventfin server", "port", cfg.Port, "display_currency", cfg.DisplayCurrency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
