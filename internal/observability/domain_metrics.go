package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_questions_total",
			Help: "Total number of questions processed by the agent pipeline.",
		},
	)
	schemaCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_schema_cache_hits_total",
			Help: "Schema summary cache hits (no LLM regeneration needed).",
		},
	)
	schemaCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_schema_cache_misses_total",
			Help: "Schema summary cache misses that triggered regeneration.",
		},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_llm_calls_total",
			Help: "LLM calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_llm_call_duration_seconds",
			Help:    "LLM call latency by operation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"op"},
	)
	sqlRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_sql_rejected_total",
			Help: "Generated SQL statements rejected by the safety validator.",
		},
	)
	tablesIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_tables_ingested_total",
			Help: "Tables created by the URL ingestion loader.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		schemaCacheHitsTotal,
		schemaCacheMissesTotal,
		llmCallsTotal,
		llmCallDurationSeconds,
		sqlRejectedTotal,
		tablesIngestedTotal,
	)
}

func IncrementQuestions() {
	questionsTotal.Inc()
}

func IncrementSchemaCacheHit() {
	schemaCacheHitsTotal.Inc()
}

func IncrementSchemaCacheMiss() {
	schemaCacheMissesTotal.Inc()
}

func ObserveLLMCall(op string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	llmCallsTotal.WithLabelValues(op, outcome).Inc()
	llmCallDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

func IncrementSQLRejected() {
	sqlRejectedTotal.Inc()
}

func IncrementTablesIngested() {
	tablesIngestedTotal.Inc()
}
