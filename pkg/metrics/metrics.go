package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	guideforge = "guideforge"

	// Job metrics
	jobsEnqueuedTotal = "jobs_enqueued_total"
	jobOutcomesTotal  = "job_outcomes_total"
	jobsProcessing    = "jobs_processing"

	// Dispatch metrics
	dispatchTicksTotal = "dispatch_ticks_total"

	// Provider metrics
	providerCallsTotal = "provider_calls_total"

	// Labels
	triggerLabel = "trigger"
	outcomeLabel = "outcome"
	statusLabel  = "status"
)

var jobsEnqueuedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: guideforge,
		Name:      jobsEnqueuedTotal,
		Help:      "number of generation jobs enqueued, by trigger",
	},
	[]string{triggerLabel},
)

var jobOutcomesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: guideforge,
		Name:      jobOutcomesTotal,
		Help:      "number of completed generation jobs, by publish outcome",
	},
	[]string{outcomeLabel},
)

var jobsProcessingMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: guideforge,
		Name:      jobsProcessing,
		Help:      "number of generation jobs currently processing",
	},
)

var dispatchTicksTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: guideforge,
		Name:      dispatchTicksTotal,
		Help:      "number of dispatcher invocations",
	},
)

var providerCallsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: guideforge,
		Name:      providerCallsTotal,
		Help:      "number of calls to the external generation provider, by status",
	},
	[]string{statusLabel},
)

func IncreaseJobsEnqueuedMetric(trigger string) {
	jobsEnqueuedTotalMetric.With(prometheus.Labels{triggerLabel: trigger}).Inc()
}

func IncreaseJobOutcomeMetric(outcome string) {
	jobOutcomesTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func UpdateJobsProcessingMetric(count int) {
	jobsProcessingMetric.Set(float64(count))
}

func IncreaseDispatchTicksMetric() {
	dispatchTicksTotalMetric.Inc()
}

func IncreaseProviderCallsMetric(status string) {
	providerCallsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsEnqueuedTotalMetric)
	prometheus.MustRegister(jobOutcomesTotalMetric)
	prometheus.MustRegister(jobsProcessingMetric)
	prometheus.MustRegister(dispatchTicksTotalMetric)
	prometheus.MustRegister(providerCallsTotalMetric)
}
