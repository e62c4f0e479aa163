package usecases

import (
	"context"
	"fmt"

	"github.com/sw1227/gradient-descent-map/internal/core/descent"
	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/pkg/geospatial"
)

// ElevationService answers single-point elevation and gradient lookups.
type ElevationService struct {
	sampler   *descent.Sampler
	estimator *descent.Estimator
}

// NewElevationService creates a new ElevationService reading through cache.
func NewElevationService(source ports.TileSource, cache *tilecache.Cache) *ElevationService {
	sampler := descent.NewSampler(source, cache)
	return &ElevationService{
		sampler:   sampler,
		estimator: descent.NewEstimator(sampler, nil),
	}
}

// At returns the elevation of the pixel containing p at zoom.
func (s *ElevationService) At(ctx context.Context, p domain.GeoPoint, zoom int) (*domain.Elevation, error) {
	if err := validateLookup(p, zoom); err != nil {
		return nil, err
	}
	e, err := s.sampler.Lookup(ctx, geospatial.GeoToPixel(p, zoom))
	if err != nil {
		return nil, fmt.Errorf("elevation lookup: %w", err)
	}
	e.Point = p
	return &e, nil
}

// GradientAt returns the gradient at the pixel containing p. Unlike a
// descent step, sampling failures are returned.
func (s *ElevationService) GradientAt(ctx context.Context, p domain.GeoPoint, zoom int) (*domain.GradientReading, error) {
	if err := validateLookup(p, zoom); err != nil {
		return nil, err
	}
	px := geospatial.GeoToPixel(p, zoom)
	g, err := s.estimator.Estimate(ctx, px)
	if err != nil {
		return nil, fmt.Errorf("gradient lookup: %w", err)
	}
	return &domain.GradientReading{Point: p, Pixel: px, Gradient: g, Norm: g.Norm()}, nil
}

func validateLookup(p domain.GeoPoint, zoom int) error {
	if err := validatePoint(p); err != nil {
		return err
	}
	if zoom < domain.MinZoom || zoom > domain.MaxZoom {
		return fmt.Errorf("%w: %d", domain.ErrInvalidZoom, zoom)
	}
	return nil
}
