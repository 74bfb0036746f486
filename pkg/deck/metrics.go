package deck

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "deck",
			Name:      "ticks_total",
			Help:      "Total number of refresh ticks",
		},
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "deck",
			Name:      "items_published_total",
			Help:      "Items published by topic",
		},
		[]string{"topic"},
	)

	publishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "deck",
			Name:      "publish_errors_total",
			Help:      "Failed publishes by topic",
		},
		[]string{"topic"},
	)

	columnFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "deck",
			Name:      "column_failures_total",
			Help:      "Columns skipped for a tick by failing stage",
		},
		[]string{"stage"}, // "extract", "lookup"
	)

	startFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deckfeed",
			Subsystem: "deck",
			Name:      "start_failures_total",
			Help:      "Failed dashboard starts by reason",
		},
		[]string{"reason"},
	)

	columnsWatched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deckfeed",
			Subsystem: "deck",
			Name:      "columns",
			Help:      "Columns watched by the running dashboard session",
		},
	)
)
