package freeze

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for freeze navigation.
var (
	freezeBootsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_boots_total",
		Help: "Total documents booted by whether capture was armed",
	}, []string{"armed"})

	freezeCapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_captures_total",
		Help: "Total capture attempts by trigger and result",
	}, []string{"trigger", "result"})

	freezeRestoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freeze_restores_total",
		Help: "Total restores by history mode and result",
	}, []string{"mode", "result"})

	freezeRestoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "freeze_restore_duration_seconds",
		Help:    "Restore duration in seconds, script joins included",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	freezeScriptFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freeze_script_failures_total",
		Help: "Total scripts that failed to load during a restore",
	})

	freezeReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freeze_reloads_total",
		Help: "Total tracked traversals that fell back to a full reload",
	})
)
