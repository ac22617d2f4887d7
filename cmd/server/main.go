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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/config"
	"github.com/yourorg/payment-gateway/internal/logger"
)

const (
	limiterCleanupInterval = time.Minute
	shutdownTimeout        = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("failed to load config", zap.Error(err))
	}

	if err := logger.Init(cfg.AppEnv); err != nil {
		fmt.Fprintln(os.Stderr, "logger disabled:", err)
	}
	defer logger.Sync()
	log := logger.L().With(zap.String("component", "server"))

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracer, err := initTracer(os.Stdout)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger.L())
	if err != nil {
		log.Fatal("failed to build gateway", zap.Error(err))
	}
	defer a.Close()

	go a.limiter.Run(ctx.Done(), limiterCleanupInterval)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("backend", a.orc.Backend()),
			zap.String("ledger", cfg.LedgerBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
