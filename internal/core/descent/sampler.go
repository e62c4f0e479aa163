// Package descent walks a position downhill over remote elevation tiles.
//
// A Sampler reads single elevations, an Estimator turns three neighbouring
// samples into a finite-difference gradient, and an Executor advances one
// trajectory by one gradient step per call.
package descent

import (
	"context"
	"fmt"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/pkg/geospatial"
)

// Sampler resolves pixel positions to elevations through a tile cache.
type Sampler struct {
	source ports.TileSource
	cache  *tilecache.Cache
}

// NewSampler creates a Sampler. A nil cache fetches every lookup from source.
func NewSampler(source ports.TileSource, cache *tilecache.Cache) *Sampler {
	return &Sampler{source: source, cache: cache}
}

// Elevation returns the elevation in meters of the integer pixel at p.
// Fractional coordinates are floored.
func (s *Sampler) Elevation(ctx context.Context, p domain.PixelPoint) (float64, error) {
	e, err := s.Lookup(ctx, p)
	if err != nil {
		return 0, err
	}
	return e.Meters, nil
}

// Lookup is Elevation with the resolved tile and offset attached.
func (s *Sampler) Lookup(ctx context.Context, p domain.PixelPoint) (domain.Elevation, error) {
	p = p.Floor()
	addr := geospatial.TileOf(p)
	off := geospatial.OffsetInTile(p)

	grid, err := s.tile(ctx, addr)
	if err != nil {
		return domain.Elevation{}, err
	}
	v, ok := grid.At(off.X, off.Y)
	if !ok {
		return domain.Elevation{}, fmt.Errorf("%w: tile %d/%d/%d offset (%d,%d)",
			domain.ErrOutOfTile, addr.Zoom, addr.X, addr.Y, off.X, off.Y)
	}
	return domain.Elevation{
		Point:  geospatial.PixelToGeo(p),
		Pixel:  p,
		Tile:   addr,
		Offset: off,
		Meters: v,
	}, nil
}

func (s *Sampler) tile(ctx context.Context, addr domain.TileAddress) (domain.TileGrid, error) {
	if s.cache == nil {
		return s.source.FetchTile(ctx, addr)
	}
	return s.cache.GetOrLoad(ctx, addr, s.source.FetchTile)
}
