// Package metrics exposes prometheus collectors for agent runs, model calls
// and tool invocations. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kbagent"

// Outcome labels.
const (
	OutcomeDone      = "done"
	OutcomeAborted   = "aborted"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
	OutcomeSuccess   = "success"
)

// Recorder groups the collectors used across the agent.
type Recorder struct {
	runs         *prometheus.CounterVec
	steps        prometheus.Histogram
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent runs by terminal outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Model steps taken per run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model generate calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_duration_seconds",
			Help:      "Latency of a model step.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
	}

	collectors := []prometheus.Collector{r.runs, r.steps, r.toolCalls, r.toolDuration, r.modelCalls, r.modelLatency}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}

	return r, nil
}

// RunFinished records a terminal run outcome and its step count.
func (r *Recorder) RunFinished(outcome string, steps int) {
	if r == nil {
		return
	}

	r.runs.WithLabelValues(outcome).Inc()
	r.steps.Observe(float64(steps))
}

// ToolCall records one tool invocation.
func (r *Recorder) ToolCall(tool string, failed bool, d time.Duration) {
	if r == nil {
		return
	}

	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeError
	}

	r.toolCalls.WithLabelValues(tool, outcome).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ModelCall records one model step.
func (r *Recorder) ModelCall(provider string, err error, d time.Duration) {
	if r == nil {
		return
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}

	r.modelCalls.WithLabelValues(provider, outcome).Inc()
	r.modelLatency.WithLabelValues(provider).Observe(d.Seconds())
}
