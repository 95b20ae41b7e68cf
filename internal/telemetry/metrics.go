/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScheduleRecomputesTotal counts playlist recomputations by trigger and outcome.
	ScheduleRecomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marquee_schedule_recomputes_total",
		Help: "Total number of playlist recomputations, by trigger and outcome (changed/unchanged/error).",
	}, []string{"reason", "outcome"})

	// PlaylistSize tracks the number of entries in the current playlist.
	PlaylistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marquee_playlist_size",
		Help: "Number of entries in the current playlist.",
	})

	// ItemsPlayedTotal counts presented items by content kind.
	ItemsPlayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marquee_items_played_total",
		Help: "Total number of presented items, by content kind.",
	}, []string{"kind"})

	// ItemsSkippedTotal counts items that were not presented, by reason.
	ItemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marquee_items_skipped_total",
		Help: "Total number of items skipped, by reason (unreachable/unknown_kind/camera/player).",
	}, []string{"reason"})

	// InterruptionsTotal counts interrupted waits.
	InterruptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marquee_interruptions_total",
		Help: "Total number of presentations cut short by the interruption signal.",
	})

	// TVCommandsTotal counts TV control commands by command and result.
	TVCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marquee_tv_commands_total",
		Help: "Total number of TV control commands, by command and result.",
	}, []string{"command", "result"})

	// TVAvailable reports whether HDMI-CEC control is available (1) or not (0).
	TVAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marquee_tv_cec_available",
		Help: "Whether HDMI-CEC control is currently available.",
	})

	// CommandsReceivedTotal counts inbound control commands by name and transport.
	CommandsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marquee_commands_received_total",
		Help: "Total number of control commands received, by command and transport.",
	}, []string{"command", "transport"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Database metrics, recorded by gorm callbacks.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marquee_database_query_duration_seconds",
		Help:    "Catalogue query duration in seconds, by operation and table.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marquee_database_errors_total",
		Help: "Total catalogue query errors, by operation.",
	}, []string{"operation", "error_type"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marquee_database_connections_open",
		Help: "Open catalogue database connections.",
	})
)
