package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/windgrid/windgrid/internal/balloon"
	"github.com/windgrid/windgrid/internal/wind"
)

// ArrowFeatures renders one arrow per summary. length is in meters.
func ArrowFeatures(summaries []wind.Summary, length float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range summaries {
		arrow := NewArrow(s.Tile.Center(), s.Direction, length)

		f := geojson.NewFeature(arrow.MultiLineString())
		f.ID = string(s.Key())
		f.Properties["speed"] = s.Speed
		f.Properties["direction"] = s.Direction
		f.Properties["color"] = SpeedColor(s.Speed)
		f.Properties["samples"] = s.SampleCount
		fc.Append(f)
	}
	return fc
}

// Trail is one balloon path ready for drawing.
type Trail struct {
	ID    string
	Color string
	Line  orb.LineString
}

// Trails builds antimeridian-safe paths from valid samples. Balloons with fewer than two
// valid samples are skipped; colours follow the position in histories.
func Trails(histories []balloon.History) []Trail {
	trails := make([]Trail, 0, len(histories))
	for i, h := range histories {
		valid := h.ValidSamples()
		if len(valid) < 2 {
			continue
		}

		points := make([]orb.Point, len(valid))
		for j, s := range valid {
			points[j] = s.Point()
		}

		trails = append(trails, Trail{
			ID:    h.ID,
			Color: PaletteColor(i),
			Line:  orb.LineString(NormalizeAntimeridian(points)),
		})
	}
	return trails
}

// TrailFeatures renders Trails as LineString features.
func TrailFeatures(histories []balloon.History) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, tr := range Trails(histories) {
		f := geojson.NewFeature(tr.Line)
		f.ID = tr.ID
		f.Properties["id"] = tr.ID
		f.Properties["color"] = tr.Color
		fc.Append(f)
	}
	return fc
}

// MarkerFeatures renders the latest valid position of each balloon.
func MarkerFeatures(histories []balloon.History) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, h := range histories {
		latest, ok := h.Latest()
		if !ok {
			continue
		}
		f := geojson.NewFeature(latest.Point())
		f.ID = h.ID
		f.Properties["id"] = h.ID
		f.Properties["color"] = PaletteColor(i)
		f.Properties["alt"] = latest.Alt
		f.Properties["hour"] = latest.Hour
		fc.Append(f)
	}
	return fc
}
