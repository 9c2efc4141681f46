// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querypilot_build_info",
			Help: "Build information of the Querypilot CLI",
		},
		[]string{"version", "commit", "date"},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_node_duration_seconds",
			Help:    "Duration of each pipeline node",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"node"},
	)

	NodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_node_errors_total",
			Help: "Total number of pipeline nodes that aborted a run",
		},
		[]string{"node"},
	)

	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	ValidationStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_sql_validation_total",
			Help: "Total number of validated SQL candidates by status",
		},
		[]string{"status"},
	)

	Clarifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_clarifications_total",
			Help: "Total number of clarification requests posted",
		},
	)

	CatalogBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_catalog_build_duration_seconds",
			Help:    "Duration of catalog builds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "querypilot_bridge_sessions",
			Help: "Number of sessions held by the bridge server",
		},
	)
)

// Run outcomes.
const (
	OutcomeAnswered    = "answered"
	OutcomeRejected    = "rejected"
	OutcomeInvalidSQL  = "invalid_sql"
	OutcomeExecFailed  = "execution_failed"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)
