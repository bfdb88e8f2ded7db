// Copyright 2025 Certen Protocol
//
// Prometheus instrumentation for the runtime: tick cadence, commit
// latency, WAL size, current height. Registered via promauto against the
// default registry, the idiom the example fleet's own metrics call sites
// use (promauto.NewCounter/NewGauge/NewHistogram).

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bftcore",
		Name:      "ticks_total",
		Help:      "Total number of server ticks applied.",
	})

	// CommandsDroppedTotal is registered but not incremented by any code in
	// this module, so it stays at zero.
	CommandsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bftcore",
		Name:      "commands_dropped_total",
		Help:      "Total number of envelopes dropped (unroutable or rejected by the entity reducer).",
	})

	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bftcore",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock time spent in one runtime tick (apply, WAL append, signing).",
		Buckets:   prometheus.DefBuckets,
	})

	// CommitLatencySeconds is registered but not observed by any code in
	// this module, so it stays empty.
	CommitLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bftcore",
		Name:      "commit_latency_seconds",
		Help:      "Time from a transaction's ADD_TX tick to the tick its COMMIT is applied.",
		Buckets:   prometheus.DefBuckets,
	})

	CurrentHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bftcore",
		Name:      "current_height",
		Help:      "Height of the most recently sealed ServerFrame.",
	})

	WALEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bftcore",
		Name:      "wal_entries",
		Help:      "Number of entries currently in the write-ahead log.",
	})
)
