package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freight_orders_created_total",
		Help: "Total number of freight orders created.",
	})

	TrackingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_tracking_events_total",
		Help: "Total number of tracking events appended to the ledger.",
	},
		[]string{"status"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_status_transitions_total",
		Help: "Total number of accepted order status transitions.",
	},
		[]string{"to"},
	)

	EscrowActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_escrow_actions_total",
		Help: "Total number of effective escrow fund movements.",
	},
		[]string{"action"},
	)

	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freight_order_version_conflicts_total",
		Help: "Total number of optimistic concurrency conflicts retried.",
	})
)
