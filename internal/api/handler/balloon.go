package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/api/models"
	"github.com/windgrid/windgrid/internal/api/response"
	"github.com/windgrid/windgrid/internal/balloon"
	"github.com/windgrid/windgrid/internal/geometry"
	"github.com/windgrid/windgrid/pkg/polyline"
)

// Trail output formats.
const (
	FormatGeoJSON  = "geojson"
	FormatPolyline = "polyline"
)

// BalloonSource provides balloon flight histories.
type BalloonSource interface {
	Histories(ctx context.Context) ([]balloon.History, error)
}

// BalloonHandler serves balloon trails.
type BalloonHandler struct {
	source BalloonSource
	logger zerolog.Logger
}

// NewBalloonHandler creates a new BalloonHandler.
func NewBalloonHandler(source BalloonSource, logger zerolog.Logger) *BalloonHandler {
	return &BalloonHandler{source: source, logger: logger}
}

// Trails handles GET /v1/balloons/trails.
//
// Query parameters:
//   - format: geojson (default) or polyline
//   - markers: true adds a point feature at each balloon's latest position (geojson only)
func (h *BalloonHandler) Trails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format := q.Get("format")
	if format == "" {
		format = FormatGeoJSON
	}
	if format != FormatGeoJSON && format != FormatPolyline {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{
			Field:   "format",
			Message: "must be geojson or polyline",
			Code:    "INVALID_VALUE",
		}})
		return
	}

	markers := false
	if raw := q.Get("markers"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{
				Field:   "markers",
				Message: "must be a boolean",
				Code:    "INVALID_VALUE",
			}})
			return
		}
		markers = v
	}

	histories, err := h.source.Histories(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("balloon histories unavailable")
		response.BadGateway(w, r, "balloon history provider unavailable")
		return
	}

	if format == FormatPolyline {
		response.JSON(w, r, http.StatusOK, polylineTrails(geometry.Trails(histories)))
		return
	}

	fc := geometry.TrailFeatures(histories)
	if markers {
		fc.Features = append(fc.Features, geometry.MarkerFeatures(histories).Features...)
	}
	response.GeoJSON(w, r, fc)
}

func polylineTrails(trails []geometry.Trail) models.TrailsPolylineResponse {
	out := models.TrailsPolylineResponse{
		Trails:    make([]models.TrailPolyline, 0, len(trails)),
		Precision: polyline.DefaultPrecision,
	}
	for _, t := range trails {
		out.Trails = append(out.Trails, models.TrailPolyline{
			ID:       t.ID,
			Color:    t.Color,
			Polyline: polyline.Encode(t.Line),
			Points:   len(t.Line),
			LengthKm: polyline.Length(t.Line) / 1000,
		})
	}
	return out
}
