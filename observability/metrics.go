// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the service.
// Metrics are registered at init via promauto and scraped from /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventdesk"

var (
	// ChatRequestsTotal counts chat requests by final outcome
	// (answered, degraded, failed, store_error).
	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_requests_total",
		Help:      "Chat requests processed, by outcome.",
	}, []string{"outcome"})

	// RoutingDecisionsTotal counts classifier decisions by target set
	// (sql, rag, both).
	RoutingDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "routing_decisions_total",
		Help:      "Classifier routing decisions, by target set.",
	}, []string{"targets"})

	// AgentFailuresTotal counts failed agent dispatches by agent and
	// reason. Informative non-failures (empty_result, no_relevant_passages)
	// are not counted here.
	AgentFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_failures_total",
		Help:      "Failed agent dispatches, by agent and reason.",
	}, []string{"agent", "reason"})

	// AgentLatencySeconds observes per-dispatch agent latency.
	AgentLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_latency_seconds",
		Help:      "Agent dispatch latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"agent"})

	// ChatLatencySeconds observes end-to-end chat handling latency.
	ChatLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chat_latency_seconds",
		Help:      "End-to-end chat request latency in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// ActiveChatRequests gauges in-flight chat requests.
	ActiveChatRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_chat_requests",
		Help:      "Chat requests currently in flight.",
	})

	// SessionsCleanedTotal counts sessions removed by the retention sweep.
	SessionsCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_cleaned_total",
		Help:      "Sessions removed by the retention sweep.",
	})

	// IngestRecordsTotal counts ingested records by kind and result.
	IngestRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_records_total",
		Help:      "Records processed by the ingestion pipeline, by kind and result.",
	}, []string{"kind", "result"})
)
