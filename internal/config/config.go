package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyEnvironmentVariable = errors.New("empty environment variable")
	ErrInvalidDonationLimits    = errors.New("invalid donation amount limits")
	ErrInvalidTierThresholds    = errors.New("invalid lifetime tier thresholds")
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Auth      AuthConfig
	Services  ServicesConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Server    ServerConfig
	Donations DonationConfig
	Cache     CacheConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds the shared secret used to verify tokens issued by the identity service.
// Issuer and Audience are optional.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	ResendAPIKey        string
	DefaultEmailSender  string
	WebAppURI           string
}

// KafkaConfig holds Kafka/event streaming configuration
type KafkaConfig struct {
	Brokers       string
	Topic         string
	ConsumerGroup string
}

// BrokerList splits the comma separated broker string.
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// RedisConfig holds Redis connection settings. Disabled means the in-memory cache backend is used.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// DonationConfig holds donation pipeline tunables. Amounts are major units.
type DonationConfig struct {
	MinAmount           decimal.Decimal
	MaxAmount           decimal.Decimal
	DefaultCurrency     string
	LifetimeTiers       []decimal.Decimal
	AbandonAfter        time.Duration
	ReconcileInterval   time.Duration
	ReconcileBatchLimit int
	SubmitRateLimit     int
}

// donationEnv is the raw environment form of DonationConfig.
type donationEnv struct {
	MinAmount           string        `env:"MIN_AMOUNT,default=1"`
	MaxAmount           string        `env:"MAX_AMOUNT,default=100000"`
	DefaultCurrency     string        `env:"DEFAULT_CURRENCY,default=USD"`
	LifetimeTiers       string        `env:"LIFETIME_TIERS,default=100|500|1000|2500"`
	AbandonAfter        time.Duration `env:"ABANDON_AFTER,default=24h"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL,default=15m"`
	ReconcileBatchLimit int           `env:"RECONCILE_BATCH_LIMIT,default=200"`
	SubmitRateLimit     int           `env:"SUBMIT_RATE_LIMIT,default=10"`
}

// CacheConfig holds staleness windows for cached reads.
type CacheConfig struct {
	DonationListStaleness  time.Duration `env:"DONATION_LIST_STALENESS,default=30s"`
	DonorProfileStaleness  time.Duration `env:"DONOR_PROFILE_STALENESS,default=60s"`
	CampaignStatsStaleness time.Duration `env:"CAMPAIGN_STATS_STALENESS,default=60s"`
	TierStatsStaleness     time.Duration `env:"TIER_STATS_STALENESS,default=5m"`
	EntryTTL               time.Duration `env:"ENTRY_TTL,default=1h"`
}

type tuning struct {
	Donations donationEnv `env:",prefix=DONATION_"`
	Cache     CacheConfig `env:",prefix=CACHE_"`
}

// Load reads and validates all required environment variables
func Load(ctx context.Context) (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	cfg.Auth.Issuer = os.Getenv("JWT_ISSUER")
	cfg.Auth.Audience = os.Getenv("JWT_AUDIENCE")

	if cfg.Services.StripeSecretKey, err = requireEnv("STRIPE_SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.StripeWebhookSecret, err = requireEnv("STRIPE_WEBHOOK_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Services.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.DefaultEmailSender, err = requireEnv("DEFAULT_EMAIL_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.Services.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}

	if cfg.Kafka.Brokers, err = requireEnv("KAFKA_BROKERS"); err != nil {
		return nil, err
	}
	cfg.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", "donation-events")
	cfg.Kafka.ConsumerGroup = getEnvWithDefault("KAFKA_CONSUMER_GROUP", "donation-receipts")

	cfg.Redis.Enabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Host = getEnvWithDefault("REDIS_HOST", "localhost")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.Port, err = strconv.Atoi(getEnvWithDefault("REDIS_PORT", "6379")); err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
	}
	if cfg.Redis.DB, err = strconv.Atoi(getEnvWithDefault("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
	}

	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	var t tuning
	if err := envconfig.Process(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to process donation config: %w", err)
	}
	if cfg.Donations, err = t.Donations.parse(); err != nil {
		return nil, err
	}
	cfg.Cache = t.Cache

	return cfg, nil
}

// parse converts the raw decimal strings and validates their relationships.
func (e donationEnv) parse() (DonationConfig, error) {
	d := DonationConfig{
		DefaultCurrency:     strings.ToUpper(e.DefaultCurrency),
		AbandonAfter:        e.AbandonAfter,
		ReconcileInterval:   e.ReconcileInterval,
		ReconcileBatchLimit: e.ReconcileBatchLimit,
		SubmitRateLimit:     e.SubmitRateLimit,
	}

	var err error
	if d.MinAmount, err = decimal.NewFromString(e.MinAmount); err != nil {
		return DonationConfig{}, fmt.Errorf("failed to parse DONATION_MIN_AMOUNT: %w", err)
	}
	if d.MaxAmount, err = decimal.NewFromString(e.MaxAmount); err != nil {
		return DonationConfig{}, fmt.Errorf("failed to parse DONATION_MAX_AMOUNT: %w", err)
	}
	if !d.MinAmount.IsPositive() || d.MaxAmount.LessThan(d.MinAmount) {
		return DonationConfig{}, ErrInvalidDonationLimits
	}

	d.LifetimeTiers, err = ParseThresholds(e.LifetimeTiers)
	if err != nil {
		return DonationConfig{}, err
	}
	return d, nil
}

// ParseThresholds parses a "|" separated list of four tier thresholds (bronze..platinum).
func ParseThresholds(raw string) ([]decimal.Decimal, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 thresholds, got %d", ErrInvalidTierThresholds, len(parts))
	}
	out := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		v, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTierThresholds, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
