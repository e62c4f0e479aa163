package descent

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/pkg/metrics"
)

// FallbackFunc is told about every gradient that fell back to zero.
type FallbackFunc func(p domain.PixelPoint, err error)

// Estimator computes finite-difference gradients from three samples of the
// unit cell containing a position.
type Estimator struct {
	sampler    *Sampler
	onFallback FallbackFunc
	logger     *slog.Logger
}

// NewEstimator creates an Estimator over sampler. onFallback may be nil.
func NewEstimator(sampler *Sampler, onFallback FallbackFunc) *Estimator {
	return &Estimator{sampler: sampler, onFallback: onFallback, logger: slog.Default()}
}

// Estimate returns the gradient at p or the first sampling error.
//
// With rx, ry the fractional parts of p, a point with rx+ry < 1 uses the
// upper-left triangle (NW, NE, SW) and every other point, the diagonal
// included, uses the lower-right triangle (NE, SW, SE).
func (e *Estimator) Estimate(ctx context.Context, p domain.PixelPoint) (domain.Gradient, error) {
	fx, fy := math.Floor(p.X), math.Floor(p.Y)
	rx, ry := p.X-fx, p.Y-fy

	at := func(dx, dy float64) domain.PixelPoint {
		return domain.PixelPoint{X: fx + dx, Y: fy + dy, Zoom: p.Zoom}
	}

	var corners [3]domain.PixelPoint
	upperLeft := rx+ry < 1
	if upperLeft {
		corners = [3]domain.PixelPoint{at(0, 0), at(1, 0), at(0, 1)} // NW, NE, SW
	} else {
		corners = [3]domain.PixelPoint{at(1, 0), at(0, 1), at(1, 1)} // NE, SW, SE
	}

	// No shared context: one failed corner must not cancel the others'
	// loads, which still land in the cache.
	var g errgroup.Group
	var v [3]float64
	for i := range corners {
		g.Go(func() error {
			h, err := e.sampler.Elevation(ctx, corners[i])
			v[i] = h
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Gradient{}, err
	}

	if upperLeft {
		nw, ne, sw := v[0], v[1], v[2]
		return domain.Gradient{DX: ne - nw, DY: sw - nw}, nil
	}
	ne, sw, se := v[0], v[1], v[2]
	return domain.Gradient{DX: se - sw, DY: se - ne}, nil
}

// Gradient is Estimate with failures reported and replaced by a zero
// gradient.
func (e *Estimator) Gradient(ctx context.Context, p domain.PixelPoint) domain.Gradient {
	g, _, _ := e.gradient(ctx, p)
	return g
}

// gradient reports a fallback only for sampling failures. When ctx is done
// it returns ctx.Err() and leaves the fallback accounting untouched.
func (e *Estimator) gradient(ctx context.Context, p domain.PixelPoint) (domain.Gradient, bool, error) {
	g, err := e.Estimate(ctx, p)
	if err == nil {
		return g, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Gradient{}, false, ctxErr
	}
	metrics.GradientFallbacks.Inc()
	e.logger.Warn("gradient estimation failed, holding position",
		"x", p.X, "y", p.Y, "zoom", p.Zoom, "error", err)
	if e.onFallback != nil {
		e.onFallback(p, err)
	}
	return domain.Gradient{}, true, nil
}
