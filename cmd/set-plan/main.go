// Command kelp-set-plan changes the plan and limits of one user.
// It is an operator tool; the caller API has no way to change a plan.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kelpcommercial/kelp-transfers/internal/config"
	"github.com/kelpcommercial/kelp-transfers/internal/logging"
	"github.com/kelpcommercial/kelp-transfers/internal/model"
	"github.com/kelpcommercial/kelp-transfers/internal/quota"
	"github.com/kelpcommercial/kelp-transfers/internal/repository/postgres"
	"github.com/kelpcommercial/kelp-transfers/internal/service"
)

type planArgs struct {
	dsn       string
	userID    string
	plan      model.Plan
	transfers uint
	storage   uint64
}

func parseArgs(args []string) (planArgs, error) {
	var a planArgs
	var plan string
	fs := flag.NewFlagSet("kelp-set-plan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&a.dsn, "dsn", "", "PostgreSQL DSN (overrides DATABASE_URL)")
	fs.StringVar(&a.userID, "user", "", "user id")
	fs.StringVar(&plan, "plan", "", "free or pro")
	fs.UintVar(&a.transfers, "transfers", 0, "pro transfers per period (0 = plan default)")
	fs.Uint64Var(&a.storage, "storage", 0, "pro bytes per period (0 = plan default)")
	if err := fs.Parse(args); err != nil {
		return a, err
	}
	if a.userID == "" {
		return a, errors.New("-user is required")
	}
	a.plan = model.Plan(plan)
	switch a.plan {
	case model.PlanPro:
		if a.transfers > uint(quota.MaxTransfers) {
			return a, fmt.Errorf("-transfers must be at most %d", quota.MaxTransfers)
		}
	case model.PlanFree:
		if a.transfers != 0 || a.storage != 0 {
			return a, errors.New("free plan takes no limit overrides")
		}
	default:
		return a, fmt.Errorf("-plan must be free or pro, got %q", plan)
	}
	return a, nil
}

func apply(ctx context.Context, accounts service.AccountService, a planArgs) (*model.User, error) {
	if a.plan == model.PlanFree {
		return accounts.DowngradeToFree(ctx, a.userID)
	}
	var overrides *quota.Limits
	if a.transfers != 0 || a.storage != 0 {
		overrides = &quota.Limits{Transfers: uint32(a.transfers), Storage: a.storage}
	}
	return accounts.UpgradeToPro(ctx, a.userID, overrides)
}

func main() {
	a, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: kelp-set-plan -user <id> -plan free|pro [-transfers N] [-storage <bytes>] [-dsn <url>]")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load("kelp-set-plan", envFile, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if a.dsn != "" {
		cfg.DatabaseURL = a.dsn
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
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer db.Close()

	u, err := apply(ctx, service.NewAccountService(postgres.NewUserRepo(db), logger), a)
	if err != nil {
		logger.Error("set plan", zap.String("user_id", a.userID), zap.Error(err))
		os.Exit(1)
	}
	logger.Info("plan set",
		zap.String("user_id", u.ID),
		zap.String("plan", string(u.Plan)),
		zap.Uint32("usage_limit", u.UsageLimit),
		zap.Uint64("storage_limit", u.StorageLimit))
}
