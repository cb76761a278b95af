// Package handler provides HTTP handlers for the windgrid API.
package handler

import (
	"net/http"
	"time"

	"github.com/windgrid/windgrid/internal/api/models"
	"github.com/windgrid/windgrid/internal/api/response"
	"github.com/windgrid/windgrid/internal/provider/resilience"
	"github.com/windgrid/windgrid/internal/worker"
)

// SchedulerView is the read side of the acquisition scheduler.
type SchedulerView interface {
	Snapshot() worker.Snapshot
	Stats() worker.Stats
	Ready() bool
}

// OpsConfig holds the dependencies of OpsHandler. Registry and Scheduler are optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Scheduler SchedulerView
	Now       func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	scheduler SchedulerView
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		scheduler: cfg.Scheduler,
		now:       now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails until the first batch is published.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.scheduler != nil && !h.scheduler.Ready() {
		response.ServiceUnavailable(w, r, "wind field not yet published")
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider and scheduler status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}

	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			p := providerStatus(health)
			status.Status = worst(status.Status, p.Status)
			status.Providers = append(status.Providers, p)
		}
	}

	if h.scheduler != nil {
		snap := h.scheduler.Snapshot()
		status.Scheduler = schedulerStatus(snap, h.scheduler.Stats())
		if snap.Error != "" {
			status.Status = worst(status.Status, models.HealthStatusDegraded)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(h *resilience.ProviderHealth) models.ProviderStatus {
	p := models.ProviderStatus{
		Provider:            h.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        h.CircuitState.String(),
		Requests:            h.Counts.Requests,
		ConsecutiveFailures: h.Counts.ConsecutiveFailures,
		LastSuccessAt:       models.TimestampPtr(h.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(h.LastFailureAt),
	}
	switch {
	case h.IsUnhealthy():
		p.Status = models.HealthStatusFail
	case h.IsDegraded():
		p.Status = models.HealthStatusDegraded
	}
	if h.LastError != "" {
		msg := h.LastError
		p.Message = &msg
	}
	return p
}

func schedulerStatus(snap worker.Snapshot, stats worker.Stats) *models.SchedulerStatus {
	s := &models.SchedulerStatus{
		Cycle:            snap.Cycle,
		Phase:            string(snap.Phase),
		Loading:          snap.Loading,
		Error:            snap.Error,
		Covered:          snap.Covered,
		Total:            snap.Total,
		BatchesCompleted: snap.BatchesCompleted,
		Batches:          stats.Batches,
		FailedBatches:    stats.FailedBatches,
		TilesFetched:     stats.TilesFetched,
		TilesFailed:      stats.TilesFailed,
		TilesRecovered:   stats.TilesRecovered,
	}
	if !stats.LastBatchAt.IsZero() {
		s.LastBatchAt = models.TimestampPtr(&stats.LastBatchAt)
		s.LastBatchDuration = stats.LastBatchDuration.String()
	}
	return s
}

var severity = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
