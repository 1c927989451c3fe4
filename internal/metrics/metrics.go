// Package metrics exposes the reservation core's Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Registry = prometheus.NewRegistry()

var (
	BrokerWaiters = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reservation_core",
		Subsystem: "broker",
		Name:      "inflight_waiters",
		Help:      "Number of correlation-broker waiters currently registered, by kind.",
	}, []string{"kind"})

	QuotaRejections = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "reservation_core",
		Subsystem: "quota",
		Name:      "rejections_total",
		Help:      "Number of try_reserve calls rejected, by reason.",
	}, []string{"reason"})

	ReconcilerActions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "reservation_core",
		Subsystem: "reconciler",
		Name:      "actions_total",
		Help:      "Number of reservations acted on by the reconciler, by pass and outcome.",
	}, []string{"pass", "outcome"})

	CoordinatorOperations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "reservation_core",
		Subsystem: "coordinator",
		Name:      "operations_total",
		Help:      "Number of coordinator operations, by name and outcome.",
	}, []string{"operation", "outcome"})
)
