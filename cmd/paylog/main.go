package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"paylog/internal/amqp"
	"paylog/internal/auth"
	"paylog/internal/cli"
	"paylog/internal/config"
	apphttp "paylog/internal/http"
	"paylog/internal/log"
	"paylog/internal/services"
	"paylog/internal/telegram"
)

func main() {
	cfg, logger, err := cli.Bootstrap(cli.Options{Component: log.ComponentApp, Full: true})
	if err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cli.OpenStore(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer store.Close()

	tokens, err := auth.NewTokens(auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     "paylog",
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})
	if err != nil {
		return err
	}

	sender, err := telegram.NewSender(telegram.Config{Token: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID})
	if err != nil {
		return err
	}
	if !sender.Configured() {
		logger.Warn("Telegram bot not configured - phone verification codes cannot be delivered")
	}

	// Balance events are optional; a nil publisher skips them.
	var publisher services.BalancePublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, balance events disabled", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - balance events will not be published")
	}

	clock := services.SystemClock(cfg.Location())
	balances := services.NewBalanceService(store, clock)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TelegramBotSecret:  cfg.TelegramBotSecret,
		TrustedProxies:     cfg.TrustedProxies,
		BlockSuspicious:    cfg.BlockSuspicious,
		CatalogCacheTTL:    cfg.CatalogCacheTTL,
		Ready:              store.Ping,
	}, apphttp.Services{
		Auth: services.NewAuthService(store, tokens, sender, services.AuthConfig{
			OTPTTL:              cfg.OTPTTL,
			MaxAttempts:         cfg.OTPMaxAttempts,
			DefaultCurrencyCode: cfg.DefaultCurrencyCode,
		}, clock),
		Ledger:  services.NewLedgerService(store, clock),
		Debtors: services.NewDebtorService(store, balances, publisher, clock),
		Catalog: services.NewCatalogService(store, clock),
		Chats:   services.NewChatService(store, clock),
	}, logger)
	if err != nil {
		return err
	}

	var auditor *services.BalanceAuditor
	if cfg.BalanceAuditInterval > 0 {
		auditor = services.NewBalanceAuditor(balances, services.BalanceAuditorConfig{
			Interval: cfg.BalanceAuditInterval,
			Repair:   cfg.BalanceAuditRepair,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting paylog server", "port", cfg.Port, "time_zone", cfg.TimeZone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if auditor != nil {
		g.Go(func() error {
			if err := auditor.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return auditor.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}
