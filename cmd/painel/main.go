package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"painel/internal/amqp"
	"painel/internal/auth"
	"painel/internal/cli"
	"painel/internal/config"
	"painel/internal/dashboard"
	apphttp "painel/internal/http"
	applog "painel/internal/log"
	"painel/internal/middleware/ratelimit"
	"painel/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	repo := cli.InitStore(context.Background(), logger, cfg.DatabaseURL)
	defer repo.Close()

	// Change notifications are optional
	var (
		publisher services.ChangePublisher
		broker    apphttp.Broker
	)
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher, broker = amqpClient, amqpClient
		logger.Info("AMQP change notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	recordService := services.NewRecordService(repo, publisher)
	gate := newGate(cfg)
	controller := dashboard.New(recordService, gate)

	if err := controller.Reload(context.Background()); err != nil {
		// Pages show the error message until the store comes back
		logger.Error("Initial record load failed", "error", err)
	}

	csrfKey := sha256.Sum256([]byte("csrf:" + cfg.SessionSecret))
	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		Controller:   controller,
		Gate:         gate,
		Store:        repo,
		Broker:       broker,
		Logger:       logger,
		CSRFKey:      csrfKey[:],
		CookieSecure: cfg.CookieSecure,
		RateLimit:    ratelimit.DefaultConfig(),
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting painel server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"dialect", repo.Dialect(),
			"records", len(controller.Records()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.WithComponent(applog.ComponentApp).Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}

func newGate(cfg *config.Config) *auth.Gate {
	sessions := auth.NewSessionStore([]byte(cfg.SessionSecret), cfg.SessionTTL)
	return auth.NewGate(auth.SingleAccount(cfg.AdminUsername, cfg.AdminPasswordHash), sessions)
}
