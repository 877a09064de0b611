package telemetry

// Histogram bucket definitions
var (
	// StartupBuckets for the full startup sequence (peer sync dominates)
	StartupBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
)

// Lifecycle Metrics
var (
	// LifecycleState is 1 for the node's current lifecycle state, 0 otherwise
	LifecycleState GaugeVec = noopGaugeVec{}

	// LifecycleTransitionsTotal counts state transitions (from -> to)
	LifecycleTransitionsTotal CounterVec = noopCounterVec{}

	// StartupDurationSeconds measures time from Start to Running
	StartupDurationSeconds Histogram = NoopStat{}

	// StartupStageDurationSeconds measures each startup stage
	StartupStageDurationSeconds HistogramVec = noopHistogramVec{}

	// StartupFailuresTotal counts failed startups by stage
	StartupFailuresTotal CounterVec = noopCounterVec{}

	// ShutdownStageFailuresTotal counts swallowed teardown failures by stage
	ShutdownStageFailuresTotal CounterVec = noopCounterVec{}

	// SyncInstancesRecovered is the instance count copied from peers at startup
	SyncInstancesRecovered Gauge = NoopStat{}

	// CloudBinderActive indicates a started cloud binder (1=yes, 0=no)
	CloudBinderActive Gauge = NoopStat{}
)

// Registry Metrics
var (
	// RegistryInstances tracks instances currently held by the local registry
	RegistryInstances Gauge = NoopStat{}

	// RegistryAccessAllowed indicates whether discovery is served (1=yes, 0=grace window)
	RegistryAccessAllowed Gauge = NoopStat{}

	// PeerSyncAttemptsTotal counts peer sync attempts by result (success, failed)
	PeerSyncAttemptsTotal CounterVec = noopCounterVec{}
)

// Event Metrics
var (
	// EventsPublishedTotal counts lifecycle events by type
	EventsPublishedTotal CounterVec = noopCounterVec{}

	// EventsDroppedTotal counts events dropped because a subscriber buffer was full
	EventsDroppedTotal Counter = NoopStat{}

	// SinkPublishTotal counts sink deliveries by sink and result
	SinkPublishTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Lifecycle Metrics
	LifecycleState = NewGaugeVec(
		"lifecycle_state",
		"Current lifecycle state (1 for the active state)",
		[]string{"state"},
	)
	LifecycleTransitionsTotal = NewCounterVec(
		"lifecycle_transitions_total",
		"Lifecycle state transitions",
		[]string{"from", "to"},
	)
	StartupDurationSeconds = NewHistogramWithBuckets(
		"startup_duration_seconds",
		"Time from start to running in seconds",
		StartupBuckets,
	)
	StartupStageDurationSeconds = NewHistogramVec(
		"startup_stage_duration_seconds",
		"Time spent in each startup stage in seconds",
		[]string{"stage"},
		StartupBuckets,
	)
	StartupFailuresTotal = NewCounterVec(
		"startup_failures_total",
		"Failed startups by stage",
		[]string{"stage"},
	)
	ShutdownStageFailuresTotal = NewCounterVec(
		"shutdown_stage_failures_total",
		"Teardown stage failures by stage",
		[]string{"stage"},
	)
	SyncInstancesRecovered = NewGauge(
		"sync_instances_recovered",
		"Instances recovered from peers during startup sync",
	)
	CloudBinderActive = NewGauge(
		"cloud_binder_active",
		"Whether the cloud binder is started (1=yes, 0=no)",
	)

	// Registry Metrics
	RegistryInstances = NewGauge(
		"registry_instances",
		"Instances held by the local registry",
	)
	RegistryAccessAllowed = NewGauge(
		"registry_access_allowed",
		"Whether discovery responses are served (1=yes, 0=no)",
	)
	PeerSyncAttemptsTotal = NewCounterVec(
		"peer_sync_attempts_total",
		"Peer sync attempts by result",
		[]string{"result"},
	)

	// Event Metrics
	EventsPublishedTotal = NewCounterVec(
		"events_published_total",
		"Lifecycle events published by type",
		[]string{"type"},
	)
	EventsDroppedTotal = NewCounter(
		"events_dropped_total",
		"Lifecycle events dropped due to full subscriber buffers",
	)
	SinkPublishTotal = NewCounterVec(
		"sink_publish_total",
		"Event sink deliveries by sink and result",
		[]string{"sink", "result"},
	)
}
