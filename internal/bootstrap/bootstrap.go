package bootstrap

import (
	"context"
	"fmt"
	"time"

	"charity-server/internal/auth/handler"
	"charity-server/internal/auth/processor"
	kafkaClient "charity-server/internal/clients/kafka"
	redisClient "charity-server/internal/clients/redis"
	"charity-server/internal/config"
	donationHandler "charity-server/internal/donations/handler"
	donationProcessor "charity-server/internal/donations/processor"
	"charity-server/internal/events"
	billingHandler "charity-server/internal/money/billing/handler"
	billingProcessor "charity-server/internal/money/billing/processor"
	"charity-server/internal/money/currency"
	"charity-server/internal/observability"
	"charity-server/internal/querycache"
	"charity-server/internal/ratelimit"
	"charity-server/internal/store"
	"charity-server/internal/tiers"
	tierHandler "charity-server/internal/tiers/handler"
)

const cacheFetchTimeout = 10 * time.Second

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Cache  *querycache.Cache
	Logger *observability.Logger

	// Services
	DonationProcessor donationProcessor.DonationProcessor
	TierService       *tiers.TierService
	SubmitLimiter     *ratelimit.Limiter

	// Handlers
	AuthHandler     handler.Handler
	BillingHandler  billingHandler.Handler
	DonationHandler donationHandler.Handler
	TierHandler     tierHandler.Handler

	// Clients (for cleanup)
	KafkaProducer *kafkaClient.Producer
	Redis         *redisClient.Client
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize the query cache on Redis when enabled, in memory otherwise
	deps.Redis, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	var backend querycache.Backend
	if deps.Redis.IsEnabled() {
		backend = querycache.NewRedisBackend(deps.Redis, cfg.Cache.EntryTTL)
	} else {
		logger.Info(ctx, "using in-memory query cache")
		backend = querycache.NewMemoryBackend(cfg.Cache.EntryTTL)
	}
	deps.Cache = querycache.New(backend, logger, querycache.WithFetchTimeout(cacheFetchTimeout))

	// Initialize Kafka producer and event publisher
	deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
		Brokers: cfg.Kafka.BrokerList(),
		Topic:   cfg.Kafka.Topic,
	}, logger)
	publisher := events.NewPublisher(deps.KafkaProducer, logger)

	// Initialize tier policies
	settlement := currency.Normalize(cfg.Donations.DefaultCurrency)
	lifetime, err := tiers.NewPolicy("lifetime", settlement, cfg.Donations.LifetimeTiers)
	if err != nil {
		return nil, fmt.Errorf("failed to build lifetime tier policy: %w", err)
	}
	recurring, err := tiers.RecurringPolicyFor(settlement)
	if err != nil {
		return nil, fmt.Errorf("failed to build recurring tier policy: %w", err)
	}
	deps.TierService = tiers.New(&deps.Store, deps.Cache, lifetime, cfg.Cache.TierStatsStaleness, logger)
	deps.TierHandler = tierHandler.New(deps.TierService, logger)

	// Initialize billing processor
	billingProc := billingProcessor.New(
		cfg.Services.StripeSecretKey,
		cfg.Services.StripeWebhookSecret,
		cfg.Services.WebAppURI,
		logger,
	)

	// Initialize donation processor and handler
	deps.DonationProcessor = donationProcessor.New(
		&deps.Store,
		billingProc,
		publisher,
		deps.TierService,
		deps.Cache,
		donationProcessor.Limits{
			Min:       cfg.Donations.MinAmount,
			Max:       cfg.Donations.MaxAmount,
			Currency:  settlement,
			Recurring: recurring,
		},
		donationProcessor.Staleness{
			List:          cfg.Cache.DonationListStaleness,
			DonorProfile:  cfg.Cache.DonorProfileStaleness,
			CampaignStats: cfg.Cache.CampaignStatsStaleness,
		},
		logger,
	)
	deps.DonationHandler = donationHandler.New(&deps.DonationProcessor, logger)
	deps.SubmitLimiter = ratelimit.New(deps.Redis, "donation_submit", cfg.Donations.SubmitRateLimit, logger)
	deps.BillingHandler = billingHandler.New(billingProc, &deps.DonationProcessor, logger)

	// Initialize auth processor and handler
	authProc := processor.New(processor.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
	}, logger)
	deps.AuthHandler = handler.New(authProc, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	ctx := context.Background()
	if d.KafkaProducer != nil {
		if err := d.KafkaProducer.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close kafka producer", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close redis client", err)
		}
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.Error(ctx, "failed to close database", err)
	}
}
