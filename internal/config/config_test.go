package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GO_ENV", "production")
	t.Setenv("DB_HOST", "localhost:5432")
	t.Setenv("DB_USERNAME", "charity")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "charity_db")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("DEFAULT_EMAIL_SENDER_ADDRESS", "giving@example.org")
	t.Setenv("WEBAPP_URI", "https://give.example.org")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("SERVER_PORT", "8080")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "donation-events", cfg.Kafka.Topic)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.BrokerList())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 6379, cfg.Redis.Port)

	assert.True(t, cfg.Donations.MinAmount.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.Donations.MaxAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, "USD", cfg.Donations.DefaultCurrency)
	assert.Equal(t, 24*time.Hour, cfg.Donations.AbandonAfter)
	require.Len(t, cfg.Donations.LifetimeTiers, 4)
	assert.True(t, cfg.Donations.LifetimeTiers[3].Equal(decimal.NewFromInt(2500)))

	assert.Equal(t, 30*time.Second, cfg.Cache.DonationListStaleness)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TierStatsStaleness)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DONATION_MIN_AMOUNT", "5")
	t.Setenv("DONATION_MAX_AMOUNT", "500.50")
	t.Setenv("DONATION_DEFAULT_CURRENCY", "eur")
	t.Setenv("DONATION_LIFETIME_TIERS", "50|200|400|800")
	t.Setenv("CACHE_DONOR_PROFILE_STALENESS", "2m")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.Donations.MaxAmount.Equal(decimal.RequireFromString("500.50")))
	assert.Equal(t, "EUR", cfg.Donations.DefaultCurrency)
	assert.True(t, cfg.Donations.LifetimeTiers[0].Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 2*time.Minute, cfg.Cache.DonorProfileStaleness)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRIPE_SECRET_KEY", "")

	_, err := Load(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyEnvironmentVariable))
}

func TestLoad_InvalidLimits(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DONATION_MIN_AMOUNT", "100")
	t.Setenv("DONATION_MAX_AMOUNT", "10")

	_, err := Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidDonationLimits)
}

func TestParseThresholds(t *testing.T) {
	got, err := ParseThresholds("10 | 50|100|250")
	require.NoError(t, err)
	assert.True(t, got[1].Equal(decimal.NewFromInt(50)))

	_, err = ParseThresholds("10|50")
	assert.ErrorIs(t, err, ErrInvalidTierThresholds)

	_, err = ParseThresholds("10|abc|100|250")
	assert.ErrorIs(t, err, ErrInvalidTierThresholds)
}
