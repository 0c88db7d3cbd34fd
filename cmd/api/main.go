package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aniladanir/retry"
	"github.com/bsm/redislock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"provisioner/internal/awsutil"
	"provisioner/internal/billing"
	"provisioner/internal/config"
	"provisioner/internal/httpserver"
	"provisioner/internal/lock"
	"provisioner/internal/logging"
	"provisioner/internal/notify"
	"provisioner/internal/observability"
	"provisioner/internal/orders"
	"provisioner/internal/pending"
	"provisioner/internal/providers/resend"
	"provisioner/internal/providers/stripe"
	"provisioner/internal/providers/twilio"
	"provisioner/internal/providers/vapi"
	"provisioner/internal/provisioning"
	sqsqueue "provisioner/internal/queue/sqs"
	"provisioner/internal/store/memory"
	"provisioner/internal/store/pg"
)

// backend is everything the API needs from persistence.
type backend interface {
	orders.Store
	pending.Store
	billing.Store
	notify.Store
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	observability.Register(prometheus.DefaultRegisterer)

	locker, redisPing := newLocker(cfg)
	notifier, queuePing := newNotifier(ctx, cfg, st)
	providerHTTP := &http.Client{Timeout: cfg.ProviderTimeout}

	retrier, err := retry.New(retry.WithMaxAttemps(3))
	if err != nil {
		slog.Error("retrier init failed", "err", err)
		os.Exit(1)
	}
	agents := &vapi.Client{
		APIKey:           cfg.VapiAPIKey,
		BaseURL:          cfg.VapiBaseURL,
		HTTP:             providerHTTP,
		Retrier:          retrier,
		Logger:           slog.Default().With("provider", "vapi"),
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
	}
	carrier := &provisioning.GuardedCarrier{
		API: &twilio.Client{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			BaseURL:    cfg.TwilioBaseURL,
			HTTP:       providerHTTP,
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.TwilioRPS), cfg.TwilioBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "twilio",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
		CallTimeout: cfg.ProviderTimeout,
	}

	repo := orders.New(st)
	alerter := &provisioning.OperatorAlerter{Notifier: notifier, To: cfg.OperatorEmail}
	orch := &provisioning.Orchestrator{
		Orders:      repo,
		Agents:      agents,
		Carrier:     carrier,
		Notifier:    notifier,
		Locker:      locker,
		Alerter:     alerter,
		CallbackURL: cfg.AgentCallbackURL,
		Country:     cfg.NumberCountry,
	}
	verifier := &provisioning.Verifier{Orders: repo, Agents: agents, Carrier: carrier, Notifier: notifier}
	svc := &provisioning.Service{
		Orders:       repo,
		Orchestrator: orch,
		Verifier:     verifier,
		Agents:       agents,
		Notifier:     notifier,
		Locker:       locker,
		Region:       cfg.DefaultRegion,
	}

	bridge := pending.New(st)
	payments := stripe.NewBilling(cfg.StripeSecretKey)
	ingestor := &billing.Ingestor{
		Parser:      stripe.Verifier{Secret: cfg.StripeWebhookSecret},
		Store:       st,
		Bridge:      bridge,
		Orders:      repo,
		Fees:        payments,
		Notifier:    notifier,
		Provisioner: orch,
		StaleAfter:  cfg.EventStaleAfter,
	}
	checkout := billing.NewCheckout(payments, bridge, config.PlanPrices("starter", "pro", "enterprise"),
		cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)

	s := httpserver.New(observability.APIRequests)
	(&httpserver.Webhook{Ingestor: ingestor}).Register(s.Mux)
	(&httpserver.Operator{
		Orders:     repo,
		Service:    svc,
		Tokens:     cfg.OperatorTokenMap(),
		Configured: cfg.Configured,
	}).Register(s.Mux)
	(&httpserver.Customer{Orders: repo, Actions: svc, Checkout: checkout}).Register(s.Mux)

	checks := map[string]httpserver.ReadyzCheck{"store": st.Ping}
	if redisPing != nil {
		checks["redis"] = redisPing
	}
	if queuePing != nil {
		checks["sqs"] = queuePing
	}
	s.RegisterHealth(2*time.Second, checks)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}

	go func() {
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port, "store", cfg.StoreDriver, "notify_mode", cfg.NotifyMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.APIConfig) (backend, func()) {
	if cfg.StoreDriver == "memory" {
		slog.Warn("using in-memory store; state is lost on restart")
		return memory.New(), func() {}
	}
	if cfg.DSN == "" {
		slog.Error("DB_DSN is required unless STORE_DRIVER=memory")
		os.Exit(1)
	}
	db, err := pg.NewPool(ctx, cfg.DSN, pg.PoolOptions{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		MaxConnIdleTime:   cfg.MaxConnIdleTime,
		HealthCheckPeriod: 30 * time.Second,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	return pg.New(db), db.Close
}

// newLocker uses Redis when configured so that replicas share order locks.
func newLocker(cfg config.APIConfig) (provisioning.Locker, httpserver.ReadyzCheck) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set; order locks are process local")
		return lock.NewLocal(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return &lock.Redis{Client: redislock.New(rdb), TTL: cfg.LockTTL}, ping
}

func newNotifier(ctx context.Context, cfg config.APIConfig, st notify.Store) (provisioning.Notifier, httpserver.ReadyzCheck) {
	switch cfg.NotifyMode {
	case "queued":
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.SQSConfig)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		return &notify.Queued{
			Store: st,
			Queue: &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.QueueURL, GroupBuckets: cfg.GroupBuckets},
		}, awsutil.QueueReachable(sqsClient, cfg.QueueURL)
	case "direct":
		return &notify.Direct{Sender: &resend.Client{
			APIKey:  cfg.ResendConfig.APIKey,
			From:    cfg.From,
			BaseURL: cfg.ResendConfig.BaseURL,
			HTTP:    &http.Client{Timeout: cfg.ProviderTimeout},
		}}, nil
	default:
		return notify.LogOnly{}, nil
	}
}
