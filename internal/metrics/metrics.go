package metrics

import (
	"keyshop-bot/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keyshop"

// Metrics holds the shop's Prometheus collectors.
type Metrics struct {
	OrdersCreated   *prometheus.CounterVec
	OrdersPaid      *prometheus.CounterVec
	OrdersExpired   prometheus.Counter
	KeysAdded       *prometheus.CounterVec
	Stock           *prometheus.GaugeVec
	WebhookRequests *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Pending orders created, by tier.",
		}, []string{"tier"}),
		OrdersPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_paid_total",
			Help:      "Orders marked paid by a payment webhook, by tier.",
		}, []string{"tier"}),
		OrdersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_expired_total",
			Help:      "Pending orders moved to expired.",
		}),
		KeysAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_added_total",
			Help:      "Keys added to inventory, by tier.",
		}, []string{"tier"}),
		Stock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock",
			Help:      "Keys currently available, by tier.",
		}, []string{"tier"}),
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Payment webhook calls, by outcome.",
		}, []string{"outcome"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Direct-message key deliveries, by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.OrdersCreated, m.OrdersPaid, m.OrdersExpired, m.KeysAdded,
			m.Stock, m.WebhookRequests, m.Deliveries)
	}
	return m
}

// ObserveStock copies stock counts into the gauge.
func (m *Metrics) ObserveStock(stock model.Stock) {
	if m == nil {
		return
	}
	for tier, n := range stock {
		m.Stock.WithLabelValues(string(tier)).Set(float64(n))
	}
}

// Webhook records one webhook outcome.
func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(outcome).Inc()
}
