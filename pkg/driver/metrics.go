package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "driver",
			Name:      "sessions_opened_total",
			Help:      "Total number of browser sessions brought up successfully",
		},
	)

	sessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "driver",
			Name:      "sessions_closed_total",
			Help:      "Total number of browser sessions closed",
		},
	)

	initFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "driver",
			Name:      "init_failures_total",
			Help:      "Total number of failed session bring-ups",
		},
	)

	operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "driver",
			Name:      "operations_total",
			Help:      "Remote session operations by name and result",
		},
		[]string{"op", "result"}, // result: "ok", "error", "rejected"
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deckfeed",
			Subsystem: "driver",
			Name:      "queue_depth",
			Help:      "Commands waiting on a handle's serial queue",
		},
		[]string{"handle"},
	)
)

func recordOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
}
