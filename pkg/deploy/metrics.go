package deploy

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fhmetrics "github.com/fluxcd/fhdeploy/pkg/metrics"
)

var (
	// Most of a cycle is spent in `fh apply`, which downloads and
	// activates a closure; minutes are normal.
	cycleDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "fhdeploy",
		Subsystem: "deploy",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a deployment cycle, in seconds.",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{fhmetrics.LabelResult})

	stepDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "fhdeploy",
		Subsystem: "deploy",
		Name:      "step_duration_seconds",
		Help:      "Duration of resolve, apply and rollback steps, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{fhmetrics.LabelStep, fhmetrics.LabelSuccess})

	stateWriteFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "fhdeploy",
		Subsystem: "deploy",
		Name:      "state_write_failures_total",
		Help:      "Count of deployment outcomes that could not be recorded.",
	}, []string{fhmetrics.LabelResult})
)
