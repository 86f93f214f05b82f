package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"charity-server/internal/bootstrap"
	"charity-server/internal/config"
	"charity-server/internal/donations/reconciler"
	"charity-server/internal/observability"
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

	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize dependencies", err)
	}
	defer deps.Cleanup()

	worker := reconciler.New(&deps.DonationProcessor, reconciler.Config{
		Interval:     cfg.Donations.ReconcileInterval,
		AbandonAfter: cfg.Donations.AbandonAfter,
		BatchLimit:   cfg.Donations.ReconcileBatchLimit,
	}, logger)

	logger.Info(ctx, fmt.Sprintf("Reconciler configuration: interval=%s abandon_after=%s batch_limit=%d",
		cfg.Donations.ReconcileInterval, cfg.Donations.AbandonAfter, cfg.Donations.ReconcileBatchLimit))

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Shutting down reconciler...")
	worker.Stop()
	<-done
	logger.Info(ctx, "Reconciler stopped")
}
