package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecyclablesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recyclables_created_total",
		Help: "Total number of recyclable listings successfully created.",
	})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recyclables_orders_placed_total",
		Help: "Total number of orders successfully placed.",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recyclables_orders_rejected_total",
		Help: "Total number of order attempts rejected, by reason.",
	},
		[]string{"reason"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recyclables_status_transitions_total",
		Help: "Status writes by entity and outcome.",
	},
		[]string{"entity", "outcome"},
	)

	ChangeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recyclables_change_events_total",
		Help: "Change notifications received from the change feed.",
	},
		[]string{"source"},
	)

	FeedRefetchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recyclables_feed_refetch_total",
		Help: "Full listing re-fetches issued by the feed.",
	})

	FeedRefetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recyclables_feed_refetch_errors_total",
		Help: "Full listing re-fetches that failed.",
	})

	FeedListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recyclables_feed_listings",
		Help: "Current number of listings held by the feed.",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recyclables_websocket_clients",
		Help: "Currently connected websocket clients.",
	})
)
