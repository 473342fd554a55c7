// Package metrics defines the Prometheus instrumentation for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// HubActiveGroups tracks the number of groups with at least one client
	HubActiveGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_groups",
			Help: "Number of broadcast groups with at least one connected client",
		},
	)

	// HubConnectedClients tracks total connected WebSocket clients
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients_total",
			Help: "Total number of connected WebSocket clients across all groups",
		},
	)

	// HubEventsDelivered counts events delivered per event type
	HubEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_delivered_total",
			Help: "Total events delivered to clients by event type",
		},
		[]string{"event_type"},
	)

	// HubSlowClientsEvicted tracks slow clients evicted due to full buffers
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total number of slow WebSocket clients evicted due to buffer full",
		},
	)

	// HubPanicsTotal tracks hub panic recoveries
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_panics_total",
			Help: "Total hub panic recoveries",
		},
	)

	// HubCommandChannelDepth tracks current command channel depth
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current depth of the hub command channel",
		},
	)

	// HubStopTimeoutsTotal tracks forced hub shutdowns
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Total hub stops that exceeded the graceful timeout",
		},
	)
)

// WebSocket connection metrics
var (
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures",
		},
	)

	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Total WebSocket connections closed due to idle timeout",
		},
	)
)

// Registry metrics
var (
	RegistryAudienceConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_audience_connections",
			Help: "Current audience connections across all presentations",
		},
	)

	RegistryPresenterConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_presenter_connections",
			Help: "Current presenter connections across all presentations",
		},
	)
)

// Live state machine metrics
var (
	LiveTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_transitions_total",
			Help: "Live-state transitions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// Response pipeline metrics
var (
	ResponsesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "responses_accepted_total",
			Help: "Total responses accepted by the ingestion pipeline",
		},
	)

	ResponsesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "responses_rejected_total",
			Help: "Total responses rejected by reason",
		},
		[]string{"reason"},
	)

	AnalysisTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_tasks_total",
			Help: "Analysis tasks by outcome (completed, failed, skipped, dropped)",
		},
		[]string{"outcome"},
	)

	AnalysisQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_queue_depth",
			Help: "Current depth of the analysis task queue",
		},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "NLP analysis duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	NLPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlp_requests_total",
			Help: "NLP provider requests by status",
		},
		[]string{"status"},
	)

	NLPCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlp_circuit_breaker_state",
			Help: "NLP provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Reconciliation client metrics
var (
	ReconcilePushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_push_events_total",
			Help: "Push events consumed by the reconciliation layer by event type",
		},
		[]string{"event_type"},
	)

	ReconcileBackupPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_backup_polls_total",
			Help: "Backup poll rounds fired while the push channel was down",
		},
	)

	ReconcileReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_reconnects_total",
			Help: "Push reconnect attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReconcileRollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_optimistic_rollbacks_total",
			Help: "Optimistic updates rolled back after a failed call",
		},
	)
)
