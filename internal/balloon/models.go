// Package balloon reads the last 24 hourly balloon position snapshots and merges them
// into per-balloon histories.
package balloon

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
)

// Balloon errors.
var (
	// ErrNoSnapshots is returned when no hourly snapshot could be fetched or parsed.
	ErrNoSnapshots = errors.New("no balloon snapshots available")
)

// Sample is one observed balloon position.
type Sample struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`

	// Hour is how many hours before the fetch the snapshot was taken (0 = latest).
	Hour      int       `json:"hour"`
	Timestamp time.Time `json:"ts"`
}

// Valid reports whether the position is on the globe.
func (s Sample) Valid() bool {
	return s.Lat >= -90 && s.Lat <= 90 && s.Lon >= -180 && s.Lon <= 180
}

// Point returns the position as an orb.Point (lon, lat).
func (s Sample) Point() orb.Point {
	return orb.Point{s.Lon, s.Lat}
}

// History is the ordered sample list of one balloon. Samples are in snapshot order,
// latest first.
type History struct {
	ID      string   `json:"id"`
	Index   int      `json:"index"`
	Samples []Sample `json:"samples"`
}

// ValidSamples returns the samples with on-globe positions.
func (h History) ValidSamples() []Sample {
	valid := make([]Sample, 0, len(h.Samples))
	for _, s := range h.Samples {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	return valid
}

// Latest returns the most recent valid sample.
func (h History) Latest() (Sample, bool) {
	for _, s := range h.Samples {
		if s.Valid() {
			return s, true
		}
	}
	return Sample{}, false
}
