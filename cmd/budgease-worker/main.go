package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ayushsunny/Budgease/internal/amqp"
	"github.com/Ayushsunny/Budgease/internal/cli"
	"github.com/Ayushsunny/Budgease/internal/config"
	"github.com/Ayushsunny/Budgease/internal/export"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(config.Load().LogLevel)
	logger.Info("Starting budgease-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.SheetsEnabled() {
		logger.Error("Google Sheets export is not configured",
			"required", "GOOGLE_SPREADSHEET_ID and GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE")
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	lister, canList := res.Lister()
	if !canList {
		logger.Warn("Backend cannot list identities, scheduled export disabled", log.FieldBackend, cfg.DataBackend)
	}

	svc, err := export.NewSheetsService(context.Background(), export.SheetsConfig{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetPrefix:        cfg.GoogleSheetPrefix,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}
	exporter := export.NewSheetsExporter(svc, cfg.GoogleSpreadsheetID, cfg.GoogleSheetPrefix, logger)
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	exportWorker := worker.NewExportWorker(res.Adapter, lister, exporter, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			_ = res.Cleanup()
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - exporting on schedule only")
	}

	if amqpClient == nil && (!canList || cfg.ExportSchedule == "") {
		logger.Error("Nothing to do: configure AMQP_URL or an EXPORT_SCHEDULE on a listable backend")
		_ = res.Cleanup()
		os.Exit(1)
	}

	cleanup := func() {
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	var jobs []func(context.Context) error
	if canList && cfg.ExportSchedule != "" {
		jobs = append(jobs, func(ctx context.Context) error {
			// Catch up on changes missed while the worker was down.
			if n, err := exportWorker.ExportAll(ctx); err != nil {
				logger.Error("Startup export incomplete", "exported", n, log.FieldError, err)
			}
			return exportWorker.RunScheduled(ctx, cfg.ExportSchedule)
		})
	}
	if amqpClient != nil {
		jobs = append(jobs, func(ctx context.Context) error {
			return amqpClient.ConsumeBudgetChanges(ctx, exportWorker.HandleBudgetChanged)
		})
	}

	err = run(ctx, jobs, cleanup)
	if ctx.Err() == nil {
		logger.Error("Worker stopped unexpectedly", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}

// run runs jobs until ctx ends or one of them fails. cleanup runs only once
// every job has returned, so nothing still uses the resources it closes.
func run(ctx context.Context, jobs []func(context.Context) error, cleanup func()) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			err := job(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	if cleanup != nil {
		cleanup()
	}
	return err
}
