package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the wallet exports. A nil *Metrics records nothing.
type Metrics struct {
	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	DepositsCreated  *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	Withdrawals      *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	EventsPublished  *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		DepositsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_deposits_created_total",
				Help: "Deposit intents created, by pay currency.",
			},
			[]string{"pay_currency"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_notifications_total",
				Help: "Payment notifications processed, by provider status and result.",
			},
			[]string{"payment_status", "result"},
		),
		Withdrawals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_withdrawals_total",
				Help: "Withdrawal transitions, by method and resulting status.",
			},
			[]string{"method", "status"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_provider_request_duration_seconds",
				Help:    "Payment provider call duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "outcome"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_events_published_total",
				Help: "Ledger events handed to post-commit sinks.",
			},
			[]string{"sink", "outcome"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(m.RequestCount, m.RequestDuration, m.DepositsCreated, m.Notifications,
		m.Withdrawals, m.ProviderDuration, m.EventsPublished, m.RateLimited)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	text := http.StatusText(status)
	m.RequestCount.WithLabelValues(method, path, text).Inc()
	m.RequestDuration.WithLabelValues(method, path, text).Observe(latency.Seconds())
}

func (m *Metrics) DepositCreated(payCurrency string) {
	if m == nil {
		return
	}
	m.DepositsCreated.WithLabelValues(payCurrency).Inc()
}

func (m *Metrics) NotificationProcessed(paymentStatus, result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(paymentStatus, result).Inc()
}

func (m *Metrics) WithdrawalTransition(method, status string) {
	if m == nil {
		return
	}
	m.Withdrawals.WithLabelValues(method, status).Inc()
}

func (m *Metrics) ObserveProvider(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) EventPublished(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(sink, outcome).Inc()
}

func (m *Metrics) RateLimitHit(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}
