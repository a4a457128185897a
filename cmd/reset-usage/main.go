// Command kelp-reset-usage zeroes the per-period transfer counter of every user.
// It is meant to be run by an external scheduler at the start of each billing period.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kelpcommercial/kelp-transfers/internal/config"
	"github.com/kelpcommercial/kelp-transfers/internal/logging"
	"github.com/kelpcommercial/kelp-transfers/internal/repository/postgres"
	"github.com/kelpcommercial/kelp-transfers/internal/service"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load("kelp-reset-usage", envFile, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Log())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer db.Close()

	accounts := service.NewAccountService(postgres.NewUserRepo(db), logger)
	n, err := accounts.ResetPeriod(ctx)
	if err != nil {
		logger.Error("reset period", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("period reset", zap.Int64("users", n))
}
