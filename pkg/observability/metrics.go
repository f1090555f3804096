// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability exposes process metrics for the orchestrator.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// CacheHits counts cache hits by cache name (paper, query_global,
	// query_session).
	CacheHits = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "deepquest_cache_hits_total",
		Help: "Cache hits by cache.",
	}, []string{"cache"})

	// CacheMisses counts cache misses by cache name.
	CacheMisses = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "deepquest_cache_misses_total",
		Help: "Cache misses by cache.",
	}, []string{"cache"})

	// SourceRequests counts outbound catalog requests by source and
	// outcome (ok, error).
	SourceRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "deepquest_source_requests_total",
		Help: "Bibliographic source requests by source and outcome.",
	}, []string{"source", "outcome"})

	// ActiveSessions tracks currently live research sessions.
	ActiveSessions = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "deepquest_active_sessions",
		Help: "Currently live research sessions.",
	})

	// CheckpointResolutions counts checkpoint outcomes by action
	// (approve, edit, iterate, timeout, abort).
	CheckpointResolutions = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "deepquest_checkpoint_resolutions_total",
		Help: "Checkpoint resolutions by action.",
	}, []string{"action"})

	// LLMCalls counts provider calls by kind (structured, stream) and
	// outcome.
	LLMCalls = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "deepquest_llm_calls_total",
		Help: "LLM provider calls by kind and outcome.",
	}, []string{"kind", "outcome"})
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
}

// Handler returns the /metrics HTTP handler for the package registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
