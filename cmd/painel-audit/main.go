package main

import (
	"context"
	"errors"
	"os"
	"time"

	"painel/internal/amqp"
	"painel/internal/cli"
	"painel/internal/config"
	"painel/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting painel-audit")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateConsumer)

	repo := cli.InitStore(context.Background(), logger, cfg.DatabaseURL)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	auditor := services.NewChangeAuditor(repo, logger)
	ctx := cli.GracefulShutdown(logger, 10*time.Second, nil)

	err = amqpClient.ConsumeRecordChanges(ctx, auditor.HandleRecordChanged)
	stats := auditor.Stats()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err, "processed", stats.Processed)
		os.Exit(1)
	}
	logger.Info("Audit consumer stopped", "processed", stats.Processed, "missing", stats.Missing)
}
