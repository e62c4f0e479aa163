package geospatial_test

import (
	"math"
	"testing"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/pkg/geospatial"
)

func TestNormalizeLongitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{179.5, 179.5},
		{180, -180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
		{720.25, 0.25},
	}
	for _, tt := range tests {
		got := geospatial.NormalizeLongitude(tt.in)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeLongitude(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLongitude_RangeAndPeriod(t *testing.T) {
	for x := -1000.0; x <= 1000.0; x += 7.3 {
		got := geospatial.NormalizeLongitude(x)
		if got < -180 || got >= 180 {
			t.Fatalf("NormalizeLongitude(%v) = %v, outside [-180,180)", x, got)
		}
		if shifted := geospatial.NormalizeLongitude(x + 360); math.Abs(shifted-got) > 1e-9 {
			t.Fatalf("NormalizeLongitude(%v+360) = %v, want %v", x, shifted, got)
		}
	}
}

func TestGeoToPixel_Origin(t *testing.T) {
	// lon=-180 is the left edge, lat=MaxLatitude the top edge.
	p := geospatial.GeoToPixel(domain.GeoPoint{Lat: geospatial.MaxLatitude, Lon: -180}, 3)
	if p.X != 0 || p.Y != 0 || p.Zoom != 3 {
		t.Errorf("expected (0,0,3), got %+v", p)
	}

	center := geospatial.GeoToPixel(domain.GeoPoint{Lat: 0, Lon: 0}, 1)
	if center.X != 256 || center.Y != 256 {
		t.Errorf("expected world center (256,256) at zoom 1, got %+v", center)
	}
}

func TestGeoToPixel_RoundsToIntegers(t *testing.T) {
	p := geospatial.GeoToPixel(domain.GeoPoint{Lat: 35.68, Lon: 139.76}, 13)
	if p.X != math.Trunc(p.X) || p.Y != math.Trunc(p.Y) {
		t.Errorf("expected integer pixel, got %+v", p)
	}
}

func TestPixelGeoRoundTrip(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 35.6812, Lon: 139.7671},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 64.1466, Lon: -21.9426},
		{Lat: 0, Lon: 0},
		{Lat: -80, Lon: -179.9},
	}
	for zoom := domain.MinZoom; zoom <= domain.MaxZoom; zoom++ {
		// half a pixel of rounding never moves more than one pixel's worth of degrees
		tol := 360 / geospatial.WorldSize(zoom)
		for _, p := range points {
			got := geospatial.PixelToGeo(geospatial.GeoToPixel(p, zoom))
			if math.Abs(got.Lat-p.Lat) > tol || math.Abs(got.Lon-p.Lon) > tol {
				t.Errorf("zoom %d: round trip of %+v gave %+v (tol %g)", zoom, p, got, tol)
			}
		}
	}
}

func TestPixelToGeo_Unrounded(t *testing.T) {
	a := geospatial.PixelToGeo(domain.PixelPoint{X: 1000, Y: 1000, Zoom: 15})
	b := geospatial.PixelToGeo(domain.PixelPoint{X: 1000.25, Y: 1000.25, Zoom: 15})
	if a == b {
		t.Error("fractional pixels must map to distinct points")
	}
	if b.Lon <= a.Lon || b.Lat >= a.Lat {
		t.Errorf("expected east/south movement, got %+v -> %+v", a, b)
	}
}

func TestTileOfAndOffset(t *testing.T) {
	pixels := []domain.PixelPoint{
		{X: 0, Y: 0, Zoom: 1},
		{X: 255, Y: 256, Zoom: 5},
		{X: 1000, Y: 1000, Zoom: 15},
		{X: 1000.9, Y: 513.2, Zoom: 15},
		{X: 8388607, Y: 4194304, Zoom: 15},
	}
	for _, p := range pixels {
		tile := geospatial.TileOf(p)
		off := geospatial.OffsetInTile(p)
		if tile.Zoom != p.Zoom {
			t.Errorf("%+v: zoom %d carried as %d", p, p.Zoom, tile.Zoom)
		}
		if off.X < 0 || off.X >= domain.TileSize || off.Y < 0 || off.Y >= domain.TileSize {
			t.Errorf("%+v: offset %+v outside tile", p, off)
		}
		if got := tile.X*domain.TileSize + off.X; got != int(math.Floor(p.X)) {
			t.Errorf("%+v: x reassembles to %d", p, got)
		}
		if got := tile.Y*domain.TileSize + off.Y; got != int(math.Floor(p.Y)) {
			t.Errorf("%+v: y reassembles to %d", p, got)
		}
	}
}

func TestPathLength(t *testing.T) {
	pts := []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}}
	got := geospatial.PathLength(pts)
	want := 2 * geospatial.Haversine(0, 0, 0, 1)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("PathLength = %v, want %v", got, want)
	}
	if geospatial.PathLength(pts[:1]) != 0 {
		t.Error("single point path must have zero length")
	}
}
