package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the body of GET /v1/ops/status.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Providers []ProviderStatus `json:"providers"`
	Scheduler *SchedulerStatus `json:"scheduler,omitempty"`
}

// ProviderStatus is the breaker state and last outcome of one upstream.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	Requests            uint32       `json:"requests"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}

// SchedulerStatus summarises the acquisition loop.
type SchedulerStatus struct {
	Cycle             int64      `json:"cycle"`
	Phase             string     `json:"phase"`
	Loading           bool       `json:"loading"`
	Error             string     `json:"error,omitempty"`
	Covered           int        `json:"covered"`
	Total             int        `json:"total"`
	BatchesCompleted  int        `json:"batchesCompleted"`
	Batches           int64      `json:"batches"`
	FailedBatches     int64      `json:"failedBatches"`
	TilesFetched      int64      `json:"tilesFetched"`
	TilesFailed       int64      `json:"tilesFailed"`
	TilesRecovered    int64      `json:"tilesRecovered"`
	LastBatchAt       *Timestamp `json:"lastBatchAt,omitempty"`
	LastBatchDuration string     `json:"lastBatchDuration,omitempty"`
}
