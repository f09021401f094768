package daemon

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fhmetrics "github.com/fluxcd/fhdeploy/pkg/metrics"
)

const LabelTrigger = "trigger"

var (
	// success is false when the trigger was coalesced into one
	// already waiting.
	triggers = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "fhdeploy",
		Subsystem: "daemon",
		Name:      "triggers_total",
		Help:      "Count of requests for a deployment cycle, by source.",
	}, []string{LabelTrigger, fhmetrics.LabelSuccess})

	lastCycleTimestamp = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "fhdeploy",
		Subsystem: "daemon",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time at which the last deployment cycle finished.",
	}, []string{fhmetrics.LabelResult})
)
