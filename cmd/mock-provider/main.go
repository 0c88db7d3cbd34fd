// Command mock-provider stands in for the voice agent platform, the carrier,
// the email provider and the payment processor's webhook sender during local
// runs and load tests.
package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"provisioner/internal/logging"
)

type config struct {
	Port      string `envconfig:"PORT" default:"8090"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID" default:"mock_sid"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" default:"mock_token"`
	VapiAPIKey       string `envconfig:"VAPI_API_KEY" default:"mock_vapi"`
	ResendAPIKey     string `envconfig:"RESEND_API_KEY" default:"mock_resend"`
	NumberPrefix     string `envconfig:"MOCK_NUMBER_PREFIX" default:"+39029876"`

	// fixed, round_robin, random or weighted; applies to purchase, assistant
	// creation and email sends.
	OutcomeMode       string  `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw       string  `envconfig:"MOCK_OUTCOMES" default:"ok"`
	SuccessRate       float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	FailureWeightsRaw string  `envconfig:"MOCK_FAILURE_WEIGHTS" default:"server_error:1"`
	DelayMs           int     `envconfig:"MOCK_DELAY_MS" default:"0"`
	TimeoutDelayMs    int     `envconfig:"MOCK_TIMEOUT_DELAY_MS" default:"12000"`

	// Payment webhooks are signed with this secret and posted to WebhookURL.
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET" default:"whsec_mock"`
	WebhookURL            string `envconfig:"MOCK_WEBHOOK_URL" default:"http://localhost:8080/v1/webhooks/payments"`
	WebhookMaxRetries     int    `envconfig:"MOCK_WEBHOOK_MAX_RETRIES" default:"8"`
	WebhookRetryBaseMs    int    `envconfig:"MOCK_WEBHOOK_RETRY_BASE_MS" default:"250"`
	WebhookRetryMaxMs     int    `envconfig:"MOCK_WEBHOOK_RETRY_MAX_MS" default:"10000"`
	WebhookRetryJitterPct int    `envconfig:"MOCK_WEBHOOK_RETRY_JITTER_PCT" default:"20"`

	Outcomes         []string
	FailureWeights   []weightedOutcome
	Delay            time.Duration
	TimeoutDelay     time.Duration
	WebhookRetryBase time.Duration
	WebhookRetryMax  time.Duration
}

type server struct {
	cfg    config
	state  *state
	rng    *rand.Rand
	rngMu  sync.Mutex
	idx    uint64
	client *http.Client
	// sleep is replaced in tests.
	sleep func(time.Duration)
}

func main() {
	cfg := loadConfig()
	logging.Init("mock-provider", cfg.LogFormat)

	s := newServer(cfg)
	slog.Info("mock provider listening", "port", cfg.Port, "outcome_mode", cfg.OutcomeMode)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(s.routes())); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func newServer(cfg config) *server {
	return &server{
		cfg:    cfg,
		state:  newState(cfg.NumberPrefix),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: &http.Client{Timeout: 5 * time.Second},
		sleep:  time.Sleep,
	}
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()

	tw := r.PathPrefix("/2010-04-01/Accounts/{AccountSid}").Subrouter()
	tw.Use(s.twilioAuth)
	tw.HandleFunc("/AvailablePhoneNumbers/{country}/Local.json", s.handleSearchNumbers).Methods(http.MethodGet)
	tw.HandleFunc("/IncomingPhoneNumbers.json", s.handlePurchaseNumber).Methods(http.MethodPost)
	tw.HandleFunc("/IncomingPhoneNumbers/{sid}.json", s.handleGetNumber).Methods(http.MethodGet)

	// the agent platform is served unversioned; clients fall back from /v1
	va := r.NewRoute().Subrouter()
	va.Use(s.bearerAuth(s.cfg.VapiAPIKey))
	va.HandleFunc("/assistant", s.handleCreateAssistant).Methods(http.MethodPost)
	va.HandleFunc("/assistant/{id}", s.handleGetAssistant).Methods(http.MethodGet)
	va.HandleFunc("/assistant/{id}", s.handleUpdateAssistant).Methods(http.MethodPatch)
	va.HandleFunc("/phone-number", s.handleListPhoneNumbers).Methods(http.MethodGet)
	va.HandleFunc("/phone-number", s.handleImportPhoneNumber).Methods(http.MethodPost)
	va.HandleFunc("/phone-number/{id}", s.handleAssignPhoneNumber).Methods(http.MethodPatch)
	va.HandleFunc("/call", s.handleCreateCall).Methods(http.MethodPost)

	em := r.NewRoute().Subrouter()
	em.Use(s.bearerAuth(s.cfg.ResendAPIKey))
	em.HandleFunc("/emails", s.handleSendEmail).Methods(http.MethodPost)

	r.HandleFunc("/mock/checkout-completed", s.handleCheckoutCompleted).Methods(http.MethodPost)
	r.HandleFunc("/mock/state", s.handleState).Methods(http.MethodGet)
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock provider request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *server) twilioAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.cfg.TwilioAccountSID || pass != s.cfg.TwilioAuthToken || mux.Vars(r)["AccountSid"] != user {
			writeTwilioError(w, http.StatusUnauthorized, 20003, "Authentication Error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) bearerAuth(key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+key {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid api key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock provider config load failed", "err", err)
		os.Exit(1)
	}
	return normalize(cfg)
}

func normalize(cfg config) config {
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.FailureWeights = parseWeightedOutcomes(cfg.FailureWeightsRaw)
	if len(cfg.FailureWeights) == 0 {
		cfg.FailureWeights = []weightedOutcome{{Kind: "server_error", Weight: 1}}
	}
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	cfg.TimeoutDelay = time.Duration(cfg.TimeoutDelayMs) * time.Millisecond

	if cfg.WebhookMaxRetries < 0 {
		cfg.WebhookMaxRetries = 0
	}
	if cfg.WebhookRetryBaseMs <= 0 {
		cfg.WebhookRetryBaseMs = 250
	}
	if cfg.WebhookRetryMaxMs <= 0 {
		cfg.WebhookRetryMaxMs = 10000
	}
	if cfg.WebhookRetryJitterPct < 0 {
		cfg.WebhookRetryJitterPct = 0
	}
	cfg.WebhookRetryBase = time.Duration(cfg.WebhookRetryBaseMs) * time.Millisecond
	cfg.WebhookRetryMax = time.Duration(cfg.WebhookRetryMaxMs) * time.Millisecond
	return cfg
}
