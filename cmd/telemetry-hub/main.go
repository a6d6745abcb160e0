package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telemetry-hub/common/logger"
	"telemetry-hub/internal/config"
	"telemetry-hub/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "telemetry-hub")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting telemetry-hub",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Bool("tls", cfg.TLSEnabled()),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("redis", cfg.RedisEnabled),
		zap.Bool("mqtt", cfg.MQTTEnabled),
		zap.Bool("database", cfg.DBEnabled),
		zap.Bool("archive", cfg.Archive.Enabled),
	)

	hubService, err := service.NewHubService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create hub service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hubService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start hub service", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-hubService.Err():
		zapLogger.Error("Server error, shutting down", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := hubService.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
