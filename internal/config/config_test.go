package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorTokenMap(t *testing.T) {
	cfg := APIConfig{OperatorTokens: " tok1=ops@example.com, tok2 = lead@example.com ,broken,=nobody@example.com"}

	got := cfg.OperatorTokenMap()
	assert.Equal(t, map[string]string{
		"tok1": "ops@example.com",
		"tok2": "lead@example.com",
	}, got)
}

func TestOperatorTokenMapEmpty(t *testing.T) {
	assert.Empty(t, APIConfig{}.OperatorTokenMap())
}

func TestPlanPrices(t *testing.T) {
	t.Setenv("STRIPE_PRICE_ID_STARTER", "price_starter")
	t.Setenv("STRIPE_PRICE_ID_PRO", "price_pro")

	assert.Equal(t, map[string]string{"starter": "price_starter", "pro": "price_pro"},
		PlanPrices("starter", "pro", "enterprise"))
}

func TestConfigured(t *testing.T) {
	cfg := APIConfig{VapiAPIKey: "k", TwilioAccountSID: "AC1"}
	cfg.ResendConfig.APIKey = "re_1"

	got := cfg.Configured()
	assert.True(t, got["agent_platform"])
	assert.False(t, got["carrier"], "carrier needs both credentials")
	assert.True(t, got["email"])
	assert.False(t, got["payments"])
	assert.False(t, got["redis_lock"])
}

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/provisioner")
	t.Setenv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/notifications.fifo")

	cfg := LoadAPI()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "pg", cfg.StoreDriver)
	assert.Equal(t, "postgres://localhost/provisioner", cfg.DSN)
	assert.Equal(t, "http://localhost:4566/000000000000/notifications.fifo", cfg.QueueURL)
	assert.Equal(t, "log", cfg.NotifyMode)
	assert.Equal(t, "IT", cfg.NumberCountry)
	assert.EqualValues(t, 10, cfg.MaxConns)
}

func TestLoadMigrateRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	os.Unsetenv("DB_DSN")
	assert.Panics(t, func() { LoadMigrate() })
}
