package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuka_cs_pipeline_runs_total",
			Help: "Total number of analysis pipeline runs.",
		},
		[]string{"mode", "status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nuka_cs_pipeline_duration_seconds",
			Help:    "Analysis pipeline duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	AnalyzerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuka_cs_analyzer_calls_total",
			Help: "Total number of analyzer invocations by outcome.",
		},
		[]string{"analyzer", "outcome"},
	)

	AnalyzerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nuka_cs_analyzer_latency_seconds",
			Help:    "Analyzer latency in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		},
		[]string{"analyzer"},
	)

	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nuka_cs_state_transitions_total",
			Help: "Conversation state decisions by target state and rule.",
		},
		[]string{"state", "rule"},
	)

	MemoryFactsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nuka_cs_memory_facts_stored_total",
			Help: "Total number of long-term facts inserted.",
		},
	)

	MemoryFactsDecayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nuka_cs_memory_facts_decayed_total",
			Help: "Total number of long-term facts removed by decay.",
		},
	)

	MemoryUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nuka_cs_memory_users",
			Help: "Number of users tracked by the memory store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PipelineRunsTotal,
		PipelineDuration,
		AnalyzerCallsTotal,
		AnalyzerLatency,
		StateTransitionsTotal,
		MemoryFactsStored,
		MemoryFactsDecayed,
		MemoryUsers,
	)
}
