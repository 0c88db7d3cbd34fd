package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type DBConfig struct {
	DSN             string        `envconfig:"DB_DSN"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
}

type SQSConfig struct {
	AWSRegion          string `envconfig:"AWS_REGION" default:"eu-south-1"`
	QueueURL           string `envconfig:"SQS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	// GroupBuckets spreads FIFO message groups per recipient.
	GroupBuckets int `envconfig:"SQS_GROUP_BUCKETS" default:"16"`
}

type ResendConfig struct {
	APIKey  string `envconfig:"RESEND_API_KEY"`
	From    string `envconfig:"EMAIL_FROM" default:"Centralino AI <noreply@example.com>"`
	BaseURL string `envconfig:"RESEND_BASE_URL" default:"https://api.resend.com"`
}

type APIConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// memory or pg
	StoreDriver string `envconfig:"STORE_DRIVER" default:"pg"`
	DBConfig

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL       time.Duration `envconfig:"ORDER_LOCK_TTL" default:"2m"`

	StripeSecretKey     string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string        `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/dashboard?checkout=success"`
	CheckoutCancelURL   string        `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:3000/checkout?cancelled=1"`
	EventStaleAfter     time.Duration `envconfig:"EVENT_STALE_AFTER" default:"5m"`

	VapiAPIKey       string        `envconfig:"VAPI_API_KEY"`
	VapiBaseURL      string        `envconfig:"VAPI_BASE_URL" default:"https://api.vapi.ai"`
	AgentCallbackURL string        `envconfig:"AGENT_CALLBACK_URL"`
	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`

	TwilioAccountSID string  `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string  `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioBaseURL    string  `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	TwilioRPS        float64 `envconfig:"TWILIO_RPS_PER_POD" default:"5"`
	TwilioBurst      int     `envconfig:"TWILIO_BURST" default:"10"`
	NumberCountry    string  `envconfig:"NUMBER_COUNTRY" default:"IT"`
	DefaultRegion    string  `envconfig:"PHONE_DEFAULT_REGION" default:"IT"`

	// queued, direct or log
	NotifyMode    string `envconfig:"NOTIFY_MODE" default:"log"`
	OperatorEmail string `envconfig:"OPERATOR_ALERT_EMAIL"`
	ResendConfig
	SQSConfig

	// comma separated token=email pairs
	OperatorTokens string `envconfig:"OPERATOR_TOKENS"`
}

type NotifierConfig struct {
	MetricsPort string `envconfig:"METRICS_PORT" default:"9091"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DBConfig
	SQSConfig
	ResendConfig

	SQSWaitTime   int32 `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs    int32 `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"10"`
	ResendRPS         float64       `envconfig:"RESEND_RPS_PER_POD" default:"2"`
	ResendBurst       int           `envconfig:"RESEND_BURST" default:"4"`
	StaleAfter        time.Duration `envconfig:"NOTIFICATION_STALE_AFTER" default:"2m"`
}

type MigrateConfig struct {
	DBDSN         string `envconfig:"DB_DSN" required:"true"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"text"`
}

type CLIConfig struct {
	APIURL        string        `envconfig:"PROVISIONER_API_URL" default:"http://localhost:8080"`
	OperatorToken string        `envconfig:"PROVISIONER_TOKEN"`
	Timeout       time.Duration `envconfig:"PROVISIONER_TIMEOUT" default:"60s"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	load(&cfg)
	return cfg
}

func LoadNotifier() NotifierConfig {
	var cfg NotifierConfig
	load(&cfg)
	return cfg
}

func LoadMigrate() MigrateConfig {
	var cfg MigrateConfig
	load(&cfg)
	return cfg
}

func LoadCLI() CLIConfig {
	var cfg CLIConfig
	load(&cfg)
	return cfg
}

func load(cfg any) {
	// a missing .env is normal outside local runs
	_ = godotenv.Load()
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
}

// OperatorTokenMap parses OPERATOR_TOKENS into token -> operator email.
func (c APIConfig) OperatorTokenMap() map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(c.OperatorTokens, ",") {
		token, email, ok := strings.Cut(pair, "=")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			continue
		}
		out[token] = strings.TrimSpace(email)
	}
	return out
}

// PlanPrices reads STRIPE_PRICE_ID_<PLAN> for every plan id given.
func PlanPrices(plans ...string) map[string]string {
	out := map[string]string{}
	for _, p := range plans {
		if v := os.Getenv("STRIPE_PRICE_ID_" + strings.ToUpper(p)); v != "" {
			out[p] = v
		}
	}
	return out
}

// Configured reports which integrations have credentials. Missing ones degrade
// to "not configured" at call time instead of failing startup.
func (c APIConfig) Configured() map[string]bool {
	return map[string]bool{
		"agent_platform":     c.VapiAPIKey != "",
		"agent_callback":     c.AgentCallbackURL != "",
		"carrier":            c.TwilioAccountSID != "" && c.TwilioAuthToken != "",
		"payments":           c.StripeSecretKey != "",
		"payments_webhook":   c.StripeWebhookSecret != "",
		"email":              c.ResendConfig.APIKey != "",
		"notification_queue": c.SQSConfig.QueueURL != "",
		"redis_lock":         c.RedisAddr != "",
		"operator_auth":      c.OperatorTokens != "",
	}
}
