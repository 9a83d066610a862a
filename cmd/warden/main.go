package main

import (
	"context"
	"errors"
	"log"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/prizepool/warden/adapters/events"
	"github.com/prizepool/warden/adapters/limiter"
	"github.com/prizepool/warden/adapters/store"
	"github.com/prizepool/warden/adapters/verifier"
	"github.com/prizepool/warden/config"
	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
	"github.com/prizepool/warden/service"
	transport "github.com/prizepool/warden/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Server.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		nonces    ports.NonceRegistry
		sessions  ports.SessionStore
		attempts  ports.RateLimiter
		publisher ports.EventPublisher
	)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to parse redis url", zap.Error(err))
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()

		nonces = store.NewRedisNonceRegistry(client, cfg.Auth.NonceTTL, logger)
		sessions = store.NewRedisSessionStore(client, cfg.Auth.SingleSessionPerAddr, logger)
		attempts = limiter.NewRedisRateLimiter(client, cfg.Auth.MaxVerifyAttempts, cfg.Auth.VerifyWindow, logger)

		wmPublisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Fatal("failed to create event publisher", zap.Error(err))
		}
		publisher = events.NewWatermillPublisher(wmPublisher)
	} else {
		logger.Warn("REDIS_URL not set, using in-memory stores")
		nonces = store.NewMemoryNonceRegistry(cfg.Auth.NonceTTL, logger)
		sessions = store.NewMemorySessionStore(cfg.Auth.SingleSessionPerAddr, logger)
		attempts = limiter.NewMemoryRateLimiter(cfg.Auth.MaxVerifyAttempts, cfg.Auth.VerifyWindow, logger)
	}

	policy := core.SiwePolicy{
		ChainID:       cfg.Auth.ChainID,
		MaxMessageAge: core.DefaultMaxMessageAge,
		ClockSkew:     core.DefaultClockSkew,
	}
	authService := service.NewAuthService(
		nonces,
		sessions,
		attempts,
		verifier.NewEthVerifier(logger),
		publisher,
		policy,
		cfg.Auth.SessionTTL,
		logger,
	)

	// Periodic expiry sweeps for nonces and sessions
	sweeper := cron.New()
	sweepSpec := "@every " + cfg.Auth.SweepInterval.String()
	if _, err := sweeper.AddFunc(sweepSpec, func() {
		nonces.Sweep(ctx, time.Now())
		sessions.Sweep(ctx, time.Now())
	}); err != nil {
		logger.Fatal("failed to schedule sweeps", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := transport.SetupRouter(authService, cfg.Server.Production(), logger)
	server := &nethttp.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
