package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"charity-server/internal/clients/kafka"
	"charity-server/internal/clients/mail"
	"charity-server/internal/config"
	"charity-server/internal/email"
	"charity-server/internal/observability"
	"charity-server/internal/store"
)

func main() {
	logger := observability.NewLogger()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	dataStore, err := store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize store", err)
	}
	defer func() { _ = dataStore.Close() }()

	mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
	if err != nil {
		logger.Fatal(ctx, "failed to create resend client", err)
	}
	emailService := email.New(mailClient, cfg.Services.DefaultEmailSender, logger)

	kafkaConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.BrokerList(),
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.ConsumerGroup,
	}, logger)
	defer func() { _ = kafkaConsumer.Close() }()

	receipts := email.NewEventConsumer(kafkaConsumer, emailService, &dataStore, logger)

	logger.Info(ctx, fmt.Sprintf("Receipt worker configuration: brokers=%v topic=%s group=%s",
		cfg.Kafka.BrokerList(), cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := receipts.Start(ctx); err != nil {
			logger.Error(ctx, "receipt consumer error", err)
			cancel()
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info(ctx, "Received shutdown signal, stopping receipt consumer...")
	case <-ctx.Done():
	}
	cancel()
	<-done

	logger.Info(ctx, "Receipt worker stopped")
}
