// Package metrics exposes the investigation runtime's Prometheus gauges and
// histograms, scraped by the operator's monitoring stack through the
// bearer-token-gated /metrics endpoint. Counters live here as package-level
// vars, promauto-registered against the default registry, so any component
// can import and observe without wiring a registry through every
// constructor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ops_agent"

// ToolDuration records each tool invocation's wall-clock time, labeled by
// tool name and outcome, so a slow or flaky tool shows up without reading logs.
var ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "tool",
	Name:      "duration_seconds",
	Help:      "Tool execution latency in seconds, by tool and outcome.",
	Buckets:   prometheus.DefBuckets,
}, []string{"tool", "status"})

// PlannerFallbackTotal counts planner decisions that fell back to the fixed
// deterministic sequence instead of trusting the LLM, the leading indicator
// of LLM outage or malformed responses.
var PlannerFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "planner",
	Name:      "fallback_total",
	Help:      "Count of planner decisions that used the deterministic fallback sequence.",
})

// StepCount records the number of graph steps an investigation took before
// reaching COMPLETE, timing out, or hitting the step cap.
var StepCount = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "investigation",
	Name:      "step_count",
	Help:      "Number of planner/tool-executor steps taken per investigation.",
	Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
})

// InvestigationsTotal counts terminal investigations by their final status.
var InvestigationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "investigation",
	Name:      "total",
	Help:      "Count of investigations reaching a terminal status.",
}, []string{"status"})
