package geospatial

import (
	"math"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// MaxLatitude is the latitude at which the square Mercator pixel space ends.
const MaxLatitude = 85.05112878

// atanhMaxLat is atanh(sin(MaxLatitude)), the y offset of the northern edge.
var atanhMaxLat = math.Atanh(math.Sin(toRad(MaxLatitude)))

// NormalizeLongitude maps any longitude into [-180, 180).
func NormalizeLongitude(deg float64) float64 {
	return deg - 360*math.Floor((deg+180)/360)
}

// halfWorld is 2^(zoom+7), half the pixel-space side length at zoom.
func halfWorld(zoom int) float64 {
	return math.Ldexp(1, zoom+7)
}

// GeoToPixel projects p into the pixel space of zoom, rounding both
// coordinates to the nearest integer pixel.
func GeoToPixel(p domain.GeoPoint, zoom int) domain.PixelPoint {
	lng := NormalizeLongitude(p.Lon)
	n := halfWorld(zoom)
	x := n * (lng/180 + 1)
	y := n / math.Pi * (-math.Atanh(math.Sin(toRad(p.Lat))) + atanhMaxLat)
	return domain.PixelPoint{X: math.Round(x), Y: math.Round(y), Zoom: zoom}
}

// PixelToGeo is the unrounded inverse of GeoToPixel.
func PixelToGeo(p domain.PixelPoint) domain.GeoPoint {
	n := halfWorld(p.Zoom)
	lat := toDeg(math.Asin(math.Tanh(-(math.Pi * p.Y / n) + atanhMaxLat)))
	lng := 180 * (p.X/n - 1)
	return domain.GeoPoint{Lat: lat, Lon: NormalizeLongitude(lng)}
}

// TileOf returns the address of the tile containing p.
func TileOf(p domain.PixelPoint) domain.TileAddress {
	return domain.TileAddress{
		Zoom: p.Zoom,
		X:    int(math.Floor(p.X / domain.TileSize)),
		Y:    int(math.Floor(p.Y / domain.TileSize)),
	}
}

// OffsetInTile returns the integer position of p inside its tile.
// Fractional coordinates are truncated first; negative pixels are out of contract.
func OffsetInTile(p domain.PixelPoint) domain.TileOffset {
	return domain.TileOffset{
		X: mod(int(math.Floor(p.X)), domain.TileSize),
		Y: mod(int(math.Floor(p.Y)), domain.TileSize),
	}
}

// WorldSize is the pixel-space side length at zoom.
func WorldSize(zoom int) float64 {
	return 2 * halfWorld(zoom)
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
