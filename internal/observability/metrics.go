package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	PaymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_payment_events_total", Help: "Payment webhook events by outcome"},
		[]string{"type", "result"},
	)
	ProvisioningSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_steps_total", Help: "Provisioning step outcomes"},
		[]string{"step", "result"},
	)
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_provider_calls_total", Help: "Outbound provider calls"},
		[]string{"provider", "op", "result"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "provisioner_provider_latency_seconds", Help: "Outbound provider call latency"},
		[]string{"provider"},
	)
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_verifications_total", Help: "Setup verification runs"},
		[]string{"result"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_notifications_total", Help: "Notification dispatch results"},
		[]string{"kind", "result"},
	)
	EmailSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "email_send_total", Help: "Email provider send outcomes"},
		[]string{"result", "http_status"},
	)
	EmailLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "email_send_latency_seconds", Help: "Email provider send latency"},
	)
	Alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_alerts_total", Help: "Operator alerts raised"},
		[]string{"step"},
	)
	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provisioner_lock_contention_total", Help: "Order lock acquisitions refused"},
		[]string{"backend"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, PaymentEvents, ProvisioningSteps, ProviderCalls, ProviderLatency,
		Verifications, Notifications, EmailSend, EmailLatency, Alerts, LockContention)
}
