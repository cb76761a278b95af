package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/api/middleware"
	"github.com/windgrid/windgrid/internal/api/models"
	"github.com/windgrid/windgrid/internal/api/response"
	"github.com/windgrid/windgrid/internal/geometry"
	"github.com/windgrid/windgrid/internal/wind"
	"github.com/windgrid/windgrid/internal/worker"
)

// Stream timing.
const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 512
)

// MaxArrowLengthKm bounds the length query parameter of the GeoJSON endpoint.
const MaxArrowLengthKm = 2000

// Stream message types.
const (
	MessageSnapshot = "snapshot"
)

// WindSource publishes wind snapshots.
type WindSource interface {
	Snapshot() worker.Snapshot
	Subscribe() (<-chan worker.Snapshot, func())
}

// WindConfig holds the dependencies of WindHandler.
type WindConfig struct {
	Source WindSource

	// AllowedOrigins lists the Origin values accepted by the stream endpoint. Empty accepts
	// any origin.
	AllowedOrigins []string

	// Done closes every open stream when it is closed (optional).
	Done <-chan struct{}

	Metrics *middleware.Metrics
	Logger  zerolog.Logger
}

// WindHandler serves the published wind field.
type WindHandler struct {
	source   WindSource
	upgrader websocket.Upgrader
	done     <-chan struct{}
	metrics  *middleware.Metrics
	logger   zerolog.Logger
}

// NewWindHandler creates a new WindHandler.
func NewWindHandler(cfg WindConfig) *WindHandler {
	h := &WindHandler{
		source:  cfg.Source,
		done:    cfg.Done,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
	return h
}

// Get handles GET /v1/wind.
func (h *WindHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, withSummaries(h.source.Snapshot()))
}

// GeoJSON handles GET /v1/wind/geojson. The optional length query sets the arrow length in km.
func (h *WindHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	var length float64 = geometry.DefaultArrowLength
	if raw := r.URL.Query().Get("length"); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(km > 0) || km > MaxArrowLengthKm {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{
				Field:   "length",
				Message: "must be a number of kilometres in (0, " + strconv.Itoa(MaxArrowLengthKm) + "]",
				Code:    "OUT_OF_RANGE",
			}})
			return
		}
		length = km * 1000
	}

	snap := h.source.Snapshot()
	response.GeoJSON(w, r, geometry.ArrowFeatures(snap.Summaries, length))
}

// Stream handles GET /v1/wind/stream. The connection receives the current snapshot and one
// message per later publication. Slow clients only see the latest snapshot.
func (h *WindHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	log := h.logger.With().
		Str("client_id", uuid.NewString()).
		Str("request_id", middleware.GetRequestID(ctx)).
		Logger()

	h.metrics.StreamOpened(ctx)
	defer h.metrics.StreamClosed(ctx)
	log.Info().Msg("stream client connected")

	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Info().Msg("stream client disconnected")
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // closing anyway
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait)) //nolint:errcheck // surfaced by the write
			if err := conn.WriteJSON(models.StreamMessage{Type: MessageSnapshot, Data: withSummaries(snap)}); err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return
			}
			h.metrics.StreamSent(ctx)
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				log.Debug().Err(err).Msg("stream ping failed")
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are processed, and closes
// closed when the connection fails or the client goes away.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait)) //nolint:errcheck // surfaced by the read
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// withSummaries makes an empty field serialise as [] rather than null.
func withSummaries(snap worker.Snapshot) worker.Snapshot {
	if snap.Summaries == nil {
		snap.Summaries = []wind.Summary{}
	}
	return snap
}
