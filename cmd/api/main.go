package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subscription-billing/internal/client"
	"subscription-billing/internal/config"
	"subscription-billing/internal/model"
	"subscription-billing/internal/repository"
	"subscription-billing/internal/server"
	"subscription-billing/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)

	db, err := client.InitDBClient(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("database init failed", slog.Any("err", err))
		os.Exit(1)
	}
	gateway := client.NewGatewayClient(&cfg.Gateway)

	planRepo := repository.NewPlanRepository(db)
	intentRepo := repository.NewCheckoutIntentRepository(db)
	eventRepo := repository.NewCompletionEventRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)

	if err := planRepo.Seed(context.Background(), defaultPlans()); err != nil {
		logger.Error("plan seed failed", slog.Any("err", err))
		os.Exit(1)
	}

	notifier := service.NewLogNotifier(logger)
	fraud := service.NewFraudScorer()

	checkoutService := service.NewCheckoutService(
		db, gateway, fraud,
		planRepo, intentRepo, couponRepo,
		cfg.BaseURL, logger,
	)
	activationService := service.NewActivationService(
		db,
		intentRepo, eventRepo, subscriptionRepo, planRepo, couponRepo, commissionRepo,
		notifier, cfg.Billing.DefaultCommissionPercent, logger,
	)
	payoutService := service.NewPayoutService(db, commissionRepo, payoutRepo, notifier, logger)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(
		checkoutService, activationService, payoutService,
		gateway, logger, cfg.Auth.JWTSecret,
	)

	logger.Info("starting HTTP server", slog.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	// Expiry sweeper: pending checkouts older than the session TTL are
	// explicitly canceled so late completion signals get rejected.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runExpirySweeper(sweepCtx, activationService, cfg.Billing, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	logger.Info("signal received, starting graceful shutdown")
	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(cfg config.Log) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func runExpirySweeper(ctx context.Context, activation service.ActivationService, cfg config.Billing, logger *slog.Logger) {
	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	ticker := time.NewTicker(time.Duration(cfg.SweepIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := activation.CancelExpired(ctx, ttl)
			if err != nil {
				logger.Warn("expiry sweep failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				logger.Info("expired checkout sessions canceled", slog.Int("count", n))
			}
		}
	}
}

func defaultPlans() []*model.Plan {
	return []*model.Plan{
		{Code: "basic", Name: "Basic", Price: decimal.NewFromInt(29), Currency: "USD", CreditAllowance: 3, Active: true},
		{Code: "standard", Name: "Standard", Price: decimal.NewFromInt(59), Currency: "USD", CreditAllowance: 8, Active: true},
		{Code: "premium", Name: "Premium", Price: decimal.NewFromInt(99), Currency: "USD", CreditAllowance: 20, Active: true},
	}
}
