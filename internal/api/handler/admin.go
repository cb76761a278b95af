package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/api/middleware"
	"github.com/windgrid/windgrid/internal/api/models"
	"github.com/windgrid/windgrid/internal/api/response"
)

// Refresher forces an immediate acquisition cycle.
type Refresher interface {
	ForceRefresh() bool
}

// AdminHandler handles operator requests.
type AdminHandler struct {
	refresher Refresher
	logger    zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(refresher Refresher, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{refresher: refresher, logger: logger}
}

// Refresh handles POST /v1/admin/refresh. Queued is false when a refresh is already pending.
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	queued := h.refresher.ForceRefresh()
	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Bool("queued", queued).
		Msg("refresh requested")
	response.Accepted(w, r, models.RefreshResponse{Queued: queued})
}
