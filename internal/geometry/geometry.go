// Package geometry turns wind summaries and balloon histories into drawable shapes.
// Every function here is pure.
package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// DefaultArrowLength is the default arrow length in meters.
const DefaultArrowLength = 300_000

// NormalizeAntimeridian returns a copy of points where each longitude is shifted by ±360
// whenever it jumps more than 180° from the previous adjusted point, so a path crossing
// the date line stays continuous.
func NormalizeAntimeridian(points []orb.Point) []orb.Point {
	out := make([]orb.Point, len(points))
	copy(out, points)

	for i := 1; i < len(out); i++ {
		delta := out[i][0] - out[i-1][0]
		if delta > 180 {
			out[i][0] -= 360
		}
		if delta < -180 {
			out[i][0] += 360
		}
	}
	return out
}

// Arrow is a wind arrow: a shaft from tail to tip and two barbs at the tip.
type Arrow struct {
	Shaft orb.LineString
	Left  orb.LineString
	Right orb.LineString
}

// MultiLineString returns the arrow as one geometry.
func (a Arrow) MultiLineString() orb.MultiLineString {
	return orb.MultiLineString{a.Shaft, a.Left, a.Right}
}

// NewArrow builds an arrow centered on center. direction is the meteorological bearing the
// wind blows from, so the arrow tip points downwind. length is in meters.
func NewArrow(center orb.Point, direction, length float64) Arrow {
	heading := math.Mod(direction+180, 360)

	tail := geo.PointAtBearingAndDistance(center, direction, length/2)
	tip := geo.PointAtBearingAndDistance(center, heading, length/2)

	barb := length * 0.3
	back := heading + 180
	left := geo.PointAtBearingAndDistance(tip, back-25, barb)
	right := geo.PointAtBearingAndDistance(tip, back+25, barb)

	return Arrow{
		Shaft: orb.LineString{tail, tip},
		Left:  orb.LineString{tip, left},
		Right: orb.LineString{tip, right},
	}
}

type colorStop struct {
	speed   float64
	r, g, b float64
}

// speedRamp maps wind speed in km/h to colour, calm blue through storm red.
var speedRamp = []colorStop{
	{0, 0x32, 0x88, 0xbd},
	{10, 0x66, 0xc2, 0xa5},
	{20, 0xab, 0xdd, 0xa4},
	{30, 0xe6, 0xf5, 0x98},
	{40, 0xfe, 0xe0, 0x8b},
	{50, 0xfd, 0xae, 0x61},
	{60, 0xf4, 0x6d, 0x43},
	{80, 0xd5, 0x3e, 0x4f},
}

// SpeedColor interpolates speed across the colour ramp and returns "#rrggbb".
// Speeds outside the ramp take the nearest end colour.
func SpeedColor(speed float64) string {
	first, last := speedRamp[0], speedRamp[len(speedRamp)-1]
	switch {
	case math.IsNaN(speed) || speed <= first.speed:
		return hex(first.r, first.g, first.b)
	case speed >= last.speed:
		return hex(last.r, last.g, last.b)
	}

	for i := 1; i < len(speedRamp); i++ {
		hi := speedRamp[i]
		if speed > hi.speed {
			continue
		}
		lo := speedRamp[i-1]
		t := (speed - lo.speed) / (hi.speed - lo.speed)
		return hex(lerp(lo.r, hi.r, t), lerp(lo.g, hi.g, t), lerp(lo.b, hi.b, t))
	}
	return hex(last.r, last.g, last.b)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func hex(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", uint8(math.Round(r)), uint8(math.Round(g)), uint8(math.Round(b)))
}

// Palette colours balloon trails by index.
var Palette = []string{
	"#e63946", "#457b9d", "#2a9d8f", "#f4a261",
	"#8d99ae", "#ffb703", "#219ebc", "#d62828",
	"#7209b7", "#06ffa5", "#ff006e", "#8338ec",
}

// PaletteColor returns the palette colour for position i.
func PaletteColor(i int) string {
	n := len(Palette)
	return Palette[((i%n)+n)%n]
}
