// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the mirror service.
//
// # Description
//
// Metrics cover the three flows of the service:
//   - Fetch runs (count by status, duration, nodes replicated)
//   - Remote listings (pages requested and listings truncated by a fetch error)
//   - Snapshot operations and article lookups
//
// Metrics are exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "mirror"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// RunsTotal counts fetch runs.
	// Labels: status (success, partial, error)
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures a whole fetch run, save included.
	RunDurationSeconds prometheus.Histogram

	// NodesReplicated counts nodes materialized by successful runs.
	NodesReplicated prometheus.Counter

	// RemoteRequestsTotal counts page requests sent to the provider.
	// Labels: listing (block_children, database_rows)
	RemoteRequestsTotal *prometheus.CounterVec

	// ListingsTotal counts drained listings.
	// Labels: listing, status (complete, truncated)
	ListingsTotal *prometheus.CounterVec

	// SnapshotOpsTotal counts snapshot saves and loads.
	// Labels: op (save, load), status (success, error)
	SnapshotOpsTotal *prometheus.CounterVec

	// LookupsTotal counts article lookups.
	// Labels: result (found, not_found)
	LookupsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors with reg.
//
// # Inputs
//
//   - reg: Registerer to use. nil means prometheus.DefaultRegisterer.
//
// # Limitations
//
//   - Panics if the collectors are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetch",
				Name:      "runs_total",
				Help:      "Total fetch runs by status",
			},
			[]string{"status"},
		),

		RunDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetch",
				Name:      "run_duration_seconds",
				Help:      "Duration of fetch runs in seconds",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		NodesReplicated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetch",
				Name:      "nodes_replicated_total",
				Help:      "Total nodes materialized by fetch runs",
			},
		),

		RemoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "remote",
				Name:      "requests_total",
				Help:      "Total page requests sent to the content provider by listing kind",
			},
			[]string{"listing"},
		),

		ListingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "remote",
				Name:      "listings_total",
				Help:      "Total drained listings by kind and completeness",
			},
			[]string{"listing", "status"},
		),

		SnapshotOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "snapshot",
				Name:      "operations_total",
				Help:      "Total snapshot operations by op and status",
			},
			[]string{"op", "status"},
		),

		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "articles",
				Name:      "lookups_total",
				Help:      "Total article lookups by result",
			},
			[]string{"result"},
		),
	}
}

// RunStatus labels the outcome of a fetch run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// RecordRun records a finished fetch run.
func (m *Metrics) RecordRun(status RunStatus, elapsed time.Duration, nodes int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDurationSeconds.Observe(elapsed.Seconds())
	if status != RunError {
		m.NodesReplicated.Add(float64(nodes))
	}
}

// RecordListing records one drained listing and the page requests it took.
func (m *Metrics) RecordListing(listing string, requests int, truncated bool) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.WithLabelValues(listing).Add(float64(requests))
	status := "complete"
	if truncated {
		status = "truncated"
	}
	m.ListingsTotal.WithLabelValues(listing, status).Inc()
}

// RecordSnapshotOp records a snapshot save or load.
func (m *Metrics) RecordSnapshotOp(op string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SnapshotOpsTotal.WithLabelValues(op, status).Inc()
}

// RecordLookup records an article lookup.
func (m *Metrics) RecordLookup(found bool) {
	if m == nil {
		return
	}
	result := "found"
	if !found {
		result = "not_found"
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
}
