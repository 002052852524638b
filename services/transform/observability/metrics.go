// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the
// transformation pipeline.
//
// Metrics are registered with the default registry via promauto and
// exposed through the server's /metrics endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "genreshift"

var (
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Generation service calls by pipeline operation and outcome.",
		},
		[]string{"operation", "status"},
	)

	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Generation service call latency by pipeline operation.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"operation"},
	)

	llmRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Generation service retries by pipeline operation.",
		},
		[]string{"operation"},
	)

	planOverallScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_overall_score",
			Help:      "Overall scores assigned to candidate transformation plans.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	generationIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_iterations",
			Help:      "Generate/refine iterations consumed per generation run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Pipeline sessions by terminal state.",
		},
		[]string{"state"},
	)
)

// ObserveLLMRequest records one generation service call.
func ObserveLLMRequest(operation, status string, duration time.Duration) {
	llmRequestsTotal.WithLabelValues(operation, status).Inc()
	llmRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncRetry counts a retry of a generation service call.
func IncRetry(operation string) {
	llmRetriesTotal.WithLabelValues(operation).Inc()
}

// ObservePlanScore records the overall score assigned to a plan.
func ObservePlanScore(score float64) {
	planOverallScore.Observe(score)
}

// ObserveGenerationIterations records how many iterations a generation
// run consumed.
func ObserveGenerationIterations(n int) {
	generationIterations.Observe(float64(n))
}

// IncSession counts a session reaching a terminal state.
func IncSession(state string) {
	sessionsTotal.WithLabelValues(state).Inc()
}
