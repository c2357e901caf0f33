package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recognizer outcomes
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

var (
	recognizerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentra",
		Name:      "recognizer_outcomes_total",
		Help:      "Recognizer calls by recognizer and outcome (hit, miss, timeout, error)",
	}, []string{"recognizer", "outcome"})

	fusionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentra",
		Name:      "fusion_total",
		Help:      "Fused results by fusion reason",
	}, []string{"reason"})

	processDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intentra",
		Name:      "process_duration_seconds",
		Help:      "End-to-end latency of Process",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	slotLLMTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentra",
		Name:      "slot_llm_total",
		Help:      "LLM slot-filling fallback calls by outcome (filled, empty, timeout, error)",
	}, []string{"outcome"})
)

// ObserveSlotLLM records the outcome of one LLM fallback call
func ObserveSlotLLM(outcome string) {
	slotLLMTotal.WithLabelValues(outcome).Inc()
}
