package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
)

func TestElevationService_At(t *testing.T) {
	src := &mockTileSource{elevation: slope}
	svc := usecases.NewElevationService(src, tilecache.New(8))
	p := startAt(1234, 2345, 14)

	e, err := svc.At(context.Background(), p, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Meters != 1234+2345 {
		t.Errorf("expected %d, got %v", 1234+2345, e.Meters)
	}
	if e.Tile != (domain.TileAddress{Zoom: 14, X: 4, Y: 9}) {
		t.Errorf("unexpected tile %+v", e.Tile)
	}
	if e.Offset != (domain.TileOffset{X: 1234 - 1024, Y: 2345 - 2304}) {
		t.Errorf("unexpected offset %+v", e.Offset)
	}
	if e.Point != p {
		t.Errorf("expected requested point %+v, got %+v", p, e.Point)
	}

	// second lookup is served from the cache
	if _, err := svc.At(context.Background(), p, 14); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", src.calls)
	}
}

func TestElevationService_AtInvalidZoom(t *testing.T) {
	src := &mockTileSource{}
	svc := usecases.NewElevationService(src, nil)

	if _, err := svc.At(context.Background(), domain.GeoPoint{Lat: 35, Lon: 139}, 16); !errors.Is(err, domain.ErrInvalidZoom) {
		t.Errorf("expected ErrInvalidZoom, got %v", err)
	}
	if src.calls != 0 {
		t.Errorf("expected no fetch, got %d", src.calls)
	}
}

func TestElevationService_GradientAtSurfacesErrors(t *testing.T) {
	src := &mockTileSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) (domain.TileGrid, error) {
		return nil, &domain.DecodeError{Row: 3, Token: "?", Err: errors.New("bad token")}
	}}
	svc := usecases.NewElevationService(src, nil)

	_, err := svc.GradientAt(context.Background(), domain.GeoPoint{Lat: 35, Lon: 139}, 12)
	var decErr *domain.DecodeError
	if !errors.As(err, &decErr) {
		t.Errorf("expected DecodeError, got %v", err)
	}
}

func TestElevationService_GradientAt(t *testing.T) {
	svc := usecases.NewElevationService(&mockTileSource{elevation: slope}, tilecache.New(8))

	r, err := svc.GradientAt(context.Background(), startAt(600, 700, 12), 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Gradient != (domain.Gradient{DX: 1, DY: 1}) {
		t.Errorf("expected {1 1}, got %+v", r.Gradient)
	}
	if r.Pixel.X != 600 || r.Pixel.Y != 700 {
		t.Errorf("unexpected pixel %+v", r.Pixel)
	}
}
