package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersCheckoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_checkout_total",
		Help: "Total number of orders created from a cart",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"trigger", "to"})

	OrderTransitionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transition_failures_total",
		Help: "Total number of rejected order operations",
	}, []string{"trigger", "reason"})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	OrdersAutoCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_auto_cancelled_total",
		Help: "Total number of orders cancelled by the expiry sweeper",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of notification deliveries by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
