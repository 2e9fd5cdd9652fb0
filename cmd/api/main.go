package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/bighogz/insider-clusters/internal/app"
	"github.com/bighogz/insider-clusters/internal/config"
	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := telemetry.Setup(cfg.TraceEnabled, os.Stderr)
	if err != nil {
		logger.WithError(err).Fatal("failed to set up tracing")
	}
	defer shutdownTracing(context.Background())

	ctx := context.Background()
	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer st.Close()
	if err := st.EnsureWatchlist(ctx); err != nil {
		logger.WithError(err).Fatal("failed to prepare watchlist table")
	}

	opts, err := app.PipelineOptions(cfg)
	if err != nil {
		logger.WithError(err).Fatal("invalid cluster criteria")
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(st, opts, cfg.AdminAPIKey).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
