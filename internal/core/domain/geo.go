package domain

import "math"

// TileSize is the side length of a raster tile in pixels.
const TileSize = 256

// Valid zoom range of the remote elevation tile pyramid.
const (
	MinZoom = 1
	MaxZoom = 15
)

// GeoPoint represents a geographic coordinate (WGS 84) in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PixelPoint is a position in the continuous pixel space of one zoom level.
// The space is TileSize * 2^Zoom units per axis, x grows east and y grows south.
type PixelPoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom int     `json:"zoom"`
}

// Floor returns the pixel with both coordinates truncated toward -inf.
func (p PixelPoint) Floor() PixelPoint {
	return PixelPoint{X: math.Floor(p.X), Y: math.Floor(p.Y), Zoom: p.Zoom}
}

// TileAddress identifies one TileSize x TileSize raster tile.
type TileAddress struct {
	Zoom int `json:"z"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// ValidZoom reports whether the address is inside the served zoom range.
func (a TileAddress) ValidZoom() bool {
	return a.Zoom >= MinZoom && a.Zoom <= MaxZoom
}

// TileOffset is the integer position of a pixel inside its tile.
type TileOffset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TileGrid is a decoded elevation tile in meters, row-major, row 0 northernmost.
// A grid is never mutated after decode.
type TileGrid [][]float64

// At returns the elevation at column x, row y.
func (g TileGrid) At(x, y int) (float64, bool) {
	if y < 0 || y >= len(g) || x < 0 || x >= len(g[y]) {
		return 0, false
	}
	return g[y][x], true
}

// Gradient is a finite-difference elevation change in meters per pixel.
type Gradient struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Norm returns the euclidean magnitude of the gradient.
func (g Gradient) Norm() float64 {
	return math.Hypot(g.DX, g.DY)
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Extend grows the box to contain p.
func (b *Bounds) Extend(p GeoPoint) {
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MinLon = math.Min(b.MinLon, p.Lon)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MaxLon = math.Max(b.MaxLon, p.Lon)
}
