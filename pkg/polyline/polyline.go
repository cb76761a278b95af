// Package polyline encodes and decodes line strings with Google's polyline algorithm.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// DefaultPrecision is the standard five decimal places.
const DefaultPrecision = 5

// ErrTruncated is returned when an encoded string ends mid-value or mid-point.
var ErrTruncated = errors.New("polyline truncated")

// Encode encodes ls at DefaultPrecision. Points are orb (lon, lat); the encoded order is
// lat then lon, as the format requires.
func Encode(ls orb.LineString) string {
	return EncodePrecision(ls, DefaultPrecision)
}

// EncodePrecision encodes ls with the given number of decimal places.
func EncodePrecision(ls orb.LineString, precision int) string {
	if len(ls) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	buf := make([]byte, 0, len(ls)*6)
	prevLat, prevLon := 0, 0

	for _, p := range ls {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

func appendValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// Decode decodes s at DefaultPrecision.
func Decode(s string) (orb.LineString, error) {
	return DecodePrecision(s, DefaultPrecision)
}

// DecodePrecision decodes s with the given number of decimal places.
func DecodePrecision(s string, precision int) (orb.LineString, error) {
	if s == "" {
		return nil, nil
	}

	factor := math.Pow10(precision)
	var ls orb.LineString
	lat, lon := 0, 0

	for i := 0; i < len(s); {
		dLat, next, err := readValue(s, i)
		if err != nil {
			return nil, err
		}
		dLon, next, err := readValue(s, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lon += dLon
		ls = append(ls, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return ls, nil
}

func readValue(s string, i int) (int, int, error) {
	shift, result := 0, 0
	for {
		if i >= len(s) {
			return 0, i, ErrTruncated
		}
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// Length returns the great-circle length of ls in meters.
func Length(ls orb.LineString) float64 {
	return geo.LengthHaversine(ls)
}
