package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ayushsunny/Budgease/internal/auth"
	"github.com/Ayushsunny/Budgease/internal/cli"
	"github.com/Ayushsunny/Budgease/internal/config"
	apphttp "github.com/Ayushsunny/Budgease/internal/http"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
	"github.com/Ayushsunny/Budgease/internal/session"
	"github.com/Ayushsunny/Budgease/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(config.Load().LogLevel)
	logger.Info("Starting budgease server", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required to verify tokens")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)

	notices := apphttp.NewNoticeHub()
	storeOpts := append(cli.StoreOptions(cfg, logger), store.WithNotifier(notices.Publish))
	sessions := session.NewManager(res.Adapter, session.ManagerConfig{
		MaxSessions:  cfg.MaxSessions,
		TTL:          cfg.SessionTTL,
		StoreOptions: storeOpts,
	}, logger)
	provider := auth.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL, logger)

	var opts []apphttp.Option
	if pinger, ok := res.Adapter.(persistence.Pinger); ok {
		opts = append(opts, apphttp.WithReadinessCheck("backend", pinger.Ping))
	}
	srv := apphttp.NewServer(":"+cfg.Port, sessions, provider, notices, logger, opts...)

	err := run(ctx, logger, srv, cfg.Port, cfg.DataBackend)

	if cerr := sessions.Close(); cerr != nil {
		logger.Error("Failed to close budget stores", log.FieldError, cerr)
	}
	if cerr := res.Cleanup(); cerr != nil {
		logger.Error("Failed to close backend", log.FieldError, cerr)
	}
	if err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// run serves until ctx ends, then shuts the server down.
func run(ctx context.Context, logger *log.Logger, srv *apphttp.Server, port, backend string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Listening", "port", port, log.FieldBackend, backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", port, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
