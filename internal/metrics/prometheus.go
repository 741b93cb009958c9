package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total number of queue deliveries by outcome",
		},
		[]string{"outcome"}, // ack, nack_requeue, nack_drop
	)

	DuplicateSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_duplicate_skips_total",
			Help: "Total number of deliveries skipped as already printed",
		},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_dispatch_duration_seconds",
			Help:    "Duration of full dispatch handling per delivery",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Transport metrics
var (
	PrintSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_print_sends_total",
			Help: "Total number of transport send attempts by result",
		},
		[]string{"result"}, // success, timeout, error
	)

	PrintSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_print_send_duration_seconds",
			Help:    "Duration of TCP document transmissions",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Broker metrics
var (
	BrokerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broker_reconnects_total",
			Help: "Total number of broker reconnection attempts",
		},
	)

	BrokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_broker_connected",
			Help: "Whether the broker connection is currently established",
		},
	)
)
