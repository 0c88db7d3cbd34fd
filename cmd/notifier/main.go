package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"provisioner/internal/awsutil"
	"provisioner/internal/config"
	"provisioner/internal/httpserver"
	"provisioner/internal/logging"
	"provisioner/internal/observability"
	"provisioner/internal/providers/resend"
	sqsqueue "provisioner/internal/queue/sqs"
	"provisioner/internal/store/pg"
	"provisioner/internal/worker"
)

func main() {
	cfg := config.LoadNotifier()
	logging.Init("notifier", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DSN, pg.PoolOptions{
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("notifier db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.SQSConfig)
	if err != nil {
		slog.Error("notifier sqs client init failed", "err", err)
		os.Exit(1)
	}
	queueReachable := awsutil.QueueReachable(sqsClient, cfg.QueueURL)

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if err := queueReachable(startupCtx); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.Consumer{
		SQS:               sqsClient,
		QueueURL:          cfg.QueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	// liveness, readiness and metrics share one port
	s := httpserver.New(nil)
	s.RegisterHealth(2*time.Second, map[string]httpserver.ReadyzCheck{
		"db":  func(c context.Context) error { return db.Ping(c) },
		"sqs": queueReachable,
	})
	s.Mux.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("notifier health listening", "port", cfg.MetricsPort)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	if cfg.ResendConfig.APIKey == "" {
		slog.Warn("RESEND_API_KEY not set; notifications will fail and be redriven")
	}
	processor := &worker.Processor{
		Store: st,
		Sender: &resend.Client{
			APIKey:  cfg.ResendConfig.APIKey,
			From:    cfg.From,
			BaseURL: cfg.ResendConfig.BaseURL,
			HTTP:    &http.Client{Timeout: 8 * time.Second},
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.ResendRPS), cfg.ResendBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "resend",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
		StaleAfter: cfg.StaleAfter,
	}

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("notifier starting poll", "queue_url", cfg.QueueURL, "concurrency", cfg.WorkerConcurrency)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job sqsqueue.EmailJob) error {
			start := time.Now()
			err := processor.Process(ctx, job)
			status := "ok"
			if err != nil {
				status = "error"
			}
			slog.Info("notification job finished",
				"notification_id", job.NotificationID,
				"kind", job.Kind,
				"status", status,
				"duration", time.Since(start),
				"err", err,
			)
			return err
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("notifier poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("notifier health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("notifier shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("notifier shutdown timeout waiting for poll loop")
	}
}
