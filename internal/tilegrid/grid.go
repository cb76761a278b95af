// Package tilegrid enumerates the fixed set of lat/lon cells the wind field is sampled on.
package tilegrid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultTileSize is the default cell edge length in degrees.
const DefaultTileSize = 10.0

// ErrInvalidTileSize is returned when the tile size cannot produce a grid.
var ErrInvalidTileSize = errors.New("tile size must be in (0, 180]")

// Tile is a rectangular grid cell identified by its center.
type Tile struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Key is the stable identity of a tile, derived from its center.
type Key string

// KeyFor returns the key for a center coordinate.
func KeyFor(lat, lon float64) Key {
	return Key(fmt.Sprintf("%.6f_%.6f", lat, lon))
}

// Key returns the tile's identity.
func (t Tile) Key() Key {
	return KeyFor(t.Lat, t.Lon)
}

// Center returns the tile center as an orb point (lon, lat).
func (t Tile) Center() orb.Point {
	return orb.Point{t.Lon, t.Lat}
}

// Bound returns the tile bounds.
func (t Tile) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{t.West, t.South},
		Max: orb.Point{t.East, t.North},
	}
}

// NewTile builds a tile of the given size around a center, clamping bounds to the globe.
func NewTile(lat, lon, size float64) Tile {
	half := size / 2
	return Tile{
		Lat:   lat,
		Lon:   lon,
		North: math.Min(lat+half, 90),
		South: math.Max(lat-half, -90),
		East:  math.Min(lon+half, 180),
		West:  math.Max(lon-half, -180),
	}
}

// Generate returns every tile of the global grid in row-major order: longitude advances
// within a latitude row, starting at the south-west corner. The order is stable for a
// given size.
func Generate(size float64) ([]Tile, error) {
	if !(size > 0) || size > 180 || math.IsInf(size, 0) {
		return nil, ErrInvalidTileSize
	}

	rows := int(math.Ceil(180 / size))
	cols := int(math.Ceil(360 / size))
	tiles := make([]Tile, 0, rows*cols)

	// Centers derive from integer indices, never from an accumulated float.
	for i := 0; ; i++ {
		lat := -90 + size/2 + float64(i)*size
		if lat >= 90 {
			break
		}
		for j := 0; ; j++ {
			lon := -180 + size/2 + float64(j)*size
			if lon >= 180 {
				break
			}
			tiles = append(tiles, NewTile(lat, lon, size))
		}
	}

	return tiles, nil
}

// Keys returns the keys of tiles in the same order.
func Keys(tiles []Tile) []Key {
	keys := make([]Key, len(tiles))
	for i, t := range tiles {
		keys[i] = t.Key()
	}
	return keys
}
