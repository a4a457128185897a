// Command kelp-server starts the transfer orchestrator gRPC server.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	api "github.com/kelpcommercial/kelp-transfers/internal/api/transferv1"
	"github.com/kelpcommercial/kelp-transfers/internal/config"
	"github.com/kelpcommercial/kelp-transfers/internal/logging"
	"github.com/kelpcommercial/kelp-transfers/internal/migrate"
	"github.com/kelpcommercial/kelp-transfers/internal/repository/postgres"
	grpcserver "github.com/kelpcommercial/kelp-transfers/internal/server/grpc"
	"github.com/kelpcommercial/kelp-transfers/internal/service"
	"github.com/kelpcommercial/kelp-transfers/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts a TLS-enabled gRPC server.
func main() {
	cfg, err := config.Load("kelp-server", envFile(), os.Args[1:])
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
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		logger.Fatal("failed to load TLS cert/key", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	userRepo := postgres.NewUserRepo(db)
	transferRepo := postgres.NewTransferRepo(db)

	presigner, err := newPresigner(ctx, cfg)
	if err != nil {
		logger.Fatal("object store", zap.Error(err))
	}

	lim, closeLim, err := newLimiter(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal("rate limiter", zap.Error(err))
	}
	defer closeLim()

	// Services
	accounts := service.NewAccountService(userRepo, logger.Named("accounts"))
	transfers := service.NewTransferService(userRepo, transferRepo, storage.NewIssuer(presigner),
		service.TransferOptions{UploadTTL: cfg.UploadURLTTL, MaxOpenTransfers: cfg.MaxOpenTransfers},
		logger.Named("transfers"))

	s := grpc.NewServer(
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.AuthUnary(grpcserver.NewJWTVerifier([]byte(cfg.JWTSigningKey)), "/"+api.ServiceName+"/"),
			grpcserver.LoggingUnary(logger),
			grpcserver.RateLimitUnary(lim, logger, api.AuthorizeChunkUploadMethod),
		),
	)

	api.RegisterTransfersServer(s, grpcserver.New(accounts, transfers, logger.Named("grpc")))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening (TLS)", zap.String("addr", cfg.Addr))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func envFile() string {
	if v := os.Getenv("ENV_FILE"); v != "" {
		return v
	}
	return ".env"
}
