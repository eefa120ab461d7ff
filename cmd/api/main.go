package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/example/wallet-infra/internal/api"
	"github.com/example/wallet-infra/internal/auth"
	"github.com/example/wallet-infra/internal/config"
	"github.com/example/wallet-infra/internal/security"
	"github.com/example/wallet-infra/internal/store"
	"github.com/example/wallet-infra/internal/wallet"
	"github.com/example/wallet-infra/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var walletStore wallet.Store
	if cfg.IsPostgres() {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		walletStore = store.NewPostgres(pool)
	} else {
		db, err := store.OpenSQLite(cfg.DatabaseURL, store.Seed{
			ChannelRef:  cfg.DefaultChannelRef,
			DailyLimit:  cfg.ChannelDailyLimit,
			RotateAfter: cfg.ChannelRotateAfter,
		})
		if err != nil {
			logger.Error("failed to open sqlite store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		walletStore = db
	}

	auditor := audit.NewChainLogger()

	workflow := wallet.NewWorkflow(walletStore, wallet.WorkflowOptions{
		MinWithdrawal: cfg.MinWithdrawal,
		Auditor:       auditor,
		Logger:        logger,
	})

	deps := api.Dependencies{
		Logger:       logger,
		Auth:         &auth.Validator{Secret: []byte(cfg.AuthSecret), Issuer: cfg.AuthIssuer},
		Wallet:       workflow,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		deps.RateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "wallet_api",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefill,
		}
	}

	router, err := api.NewRouter(deps)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("wallet api listening", "addr", cfg.APIAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
