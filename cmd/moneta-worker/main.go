package main

import (
	"context"
	"os"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/cli"
	"moneta/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting moneta-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("MONETA_AMQP_URL is required for the hand-off worker")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	handoff := worker.NewHandoffWorker(cfg.OutboxDir)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Blocks until the shutdown signal cancels ctx or the broker goes away.
	err = amqpClient.ConsumeBackupCreated(ctx, func(msg *amqp.BackupCreatedMessage) error {
		return handoff.HandleBackupCreated(ctx, msg)
	})
	amqpClient.Close()
	if err != nil && err != context.Canceled {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
