package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/EmerBV/figrclub-sub001/internal/devserver"
	"github.com/EmerBV/figrclub-sub001/internal/infra/config"
	"github.com/EmerBV/figrclub-sub001/internal/infra/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server, err := devserver.New(cfg.DevServer, lg)
	if err != nil {
		log.Fatalf("failed to init devserver: %v", err)
	}

	if err := server.Run(ctx); err != nil {
		lg.Error("devserver stopped", zap.Error(err))
		os.Exit(1)
	}
}
