// Package main is the ingestion engine's entry point: it loads
// configuration, wires the application's services, exposes a metrics/health
// status server, and runs the orchestrator until an OS signal requests
// shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/app"
	"github.com/blogwatch/ingestor/internal/config"
	"github.com/blogwatch/ingestor/internal/httpstatus"
	"github.com/blogwatch/ingestor/internal/logging"
	"github.com/blogwatch/ingestor/internal/metrics"
)

// Exit codes: 0 normal shutdown, 1 configuration or service initialization
// failure, 2 the orchestrator aborted after its shutdown grace deadline.
const (
	exitOK              = 0
	exitInitFailure     = 1
	exitShutdownFailure = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return exitInitFailure
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return exitInitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", zap.Error(err))
		return exitInitFailure
	}
	defer application.Close()

	statusServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           httpstatus.New(logger, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("status server started", zap.Int("port", cfg.Server.Port))
		if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- application.Orchestrator().Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown error", zap.Error(err))
	}

	if err := <-runErrCh; err != nil {
		logger.Error("orchestrator shutdown failed", zap.Error(err))
		return exitShutdownFailure
	}

	logger.Info("shutdown complete")
	return exitOK
}
