/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes prometheus instrumentation for the agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sweeps counts completed poll sweeps.
	Sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "code_agent_sweeps_total",
		Help: "Number of completed poll sweeps.",
	})

	// SweepDuration observes how long a full sweep takes.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "code_agent_sweep_duration_seconds",
		Help:    "Duration of poll sweeps in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// IssuesProcessed counts per-issue processing outcomes.
	IssuesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "code_agent_issues_processed_total",
		Help: "Number of issue processing attempts by outcome.",
	}, []string{"outcome"})

	// Transitions counts iteration state transitions.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "code_agent_state_transitions_total",
		Help: "Number of iteration state transitions.",
	}, []string{"from", "to"})

	// ProducerRuns counts change producer invocations by variant and outcome.
	ProducerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "code_agent_producer_runs_total",
		Help: "Number of change producer invocations.",
	}, []string{"variant", "outcome"})
)

// Handler returns the HTTP handler serving the prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
