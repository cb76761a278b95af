package models

// TrailPolyline is one balloon path in Google polyline encoding.
type TrailPolyline struct {
	ID       string  `json:"id"`
	Color    string  `json:"color"`
	Polyline string  `json:"polyline"`
	Points   int     `json:"points"`
	LengthKm float64 `json:"lengthKm"`
}

// TrailsPolylineResponse is the body of GET /v1/balloons/trails?format=polyline.
type TrailsPolylineResponse struct {
	Trails    []TrailPolyline `json:"trails"`
	Precision int             `json:"precision"`
}

// RefreshResponse is the body of POST /v1/admin/refresh.
type RefreshResponse struct {
	// Queued is false when a refresh was already pending.
	Queued bool `json:"queued"`
}

// StreamMessage is one WebSocket frame of GET /v1/wind/stream.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
