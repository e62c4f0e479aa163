package descent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/pkg/geospatial"
	"github.com/sw1227/gradient-descent-map/internal/pkg/metrics"
)

// StepFunc receives every completed step.
type StepFunc func(step domain.Step)

// Config is the per-trajectory descent configuration.
type Config struct {
	Zoom    int
	Epsilon float64
}

// Option customises an Executor.
type Option func(*Executor)

// WithCache makes the executor share c instead of creating a private cache.
// c must outlive every executor using it.
func WithCache(c *tilecache.Cache) Option {
	return func(e *Executor) { e.cache = c }
}

// WithCapacity sets the size of the private cache. Ignored with WithCache.
func WithCapacity(n int) Option {
	return func(e *Executor) { e.capacity = n }
}

// WithThreshold enables early convergence: once a successfully estimated
// gradient is shorter than t the executor reports Converged. Zero disables it.
func WithThreshold(t float64) Option {
	return func(e *Executor) { e.threshold = t }
}

// WithFallbackHook registers fn for every step whose gradient fell back to zero.
func WithFallbackHook(fn FallbackFunc) Option {
	return func(e *Executor) { e.onFallback = fn }
}

// WithLogger sets the logger used for suppressed sampling failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// Executor drives one trajectory. It is Idle between calls and Stepping
// while Step runs; Step refuses to start while another Step is in flight.
type Executor struct {
	mu sync.Mutex // held while Stepping

	pixel     domain.PixelPoint
	epsilon   float64
	threshold float64
	steps     int
	fallbacks int
	converged bool

	cache      *tilecache.Cache
	capacity   int
	estimator  *Estimator
	onStep     StepFunc
	onFallback FallbackFunc
	logger     *slog.Logger
}

// NewExecutor projects start onto the pixel grid of cfg.Zoom (rounded) and
// returns an Idle executor. onStep may be nil.
func NewExecutor(source ports.TileSource, start domain.GeoPoint, cfg Config, onStep StepFunc, opts ...Option) *Executor {
	e := &Executor{
		pixel:   geospatial.GeoToPixel(start, cfg.Zoom),
		epsilon: cfg.Epsilon,
		onStep:  onStep,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = tilecache.New(e.capacity)
	}
	e.estimator = NewEstimator(NewSampler(source, e.cache), e.onFallback)
	e.estimator.logger = e.logger
	return e
}

// Step performs one descent step: estimate the gradient at the current
// pixel, move against it by epsilon, and report the new position. Sampling
// failures produce a zero gradient and a Fallback step that holds position.
// It returns domain.ErrStepInFlight while another step runs, and ctx.Err()
// without moving when ctx is done before the gradient is known.
func (e *Executor) Step(ctx context.Context) (domain.Step, error) {
	if !e.mu.TryLock() {
		return domain.Step{}, domain.ErrStepInFlight
	}

	g, fellBack, err := e.estimator.gradient(ctx, e.pixel)
	if err != nil {
		e.mu.Unlock()
		return domain.Step{}, err
	}

	e.pixel.X -= e.epsilon * g.DX
	e.pixel.Y -= e.epsilon * g.DY
	e.steps++

	step := domain.Step{
		Index:    e.steps,
		Position: geospatial.PixelToGeo(e.pixel),
		Pixel:    e.pixel,
		Gradient: g,
		Fallback: fellBack,
	}
	if fellBack {
		e.fallbacks++
	} else if e.threshold > 0 && g.Norm() < e.threshold {
		e.converged = true
	}
	e.mu.Unlock()
	metrics.DescentSteps.Inc()

	if e.onStep != nil {
		e.onStep(step)
	}
	return step, nil
}

// Run performs up to n steps, stopping early on convergence or when ctx is
// done between steps. It returns the number of steps performed.
func (e *Executor) Run(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := e.Step(ctx); err != nil {
			return i, err
		}
		if e.Converged() {
			return i + 1, nil
		}
	}
	return n, nil
}

// Pixel returns the current position in pixel space.
func (e *Executor) Pixel() domain.PixelPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pixel
}

// Position returns the current position as a geographic point.
func (e *Executor) Position() domain.GeoPoint {
	return geospatial.PixelToGeo(e.Pixel())
}

// StepsRun is the number of completed steps.
func (e *Executor) StepsRun() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Fallbacks is the number of steps that held position after a failed estimate.
func (e *Executor) Fallbacks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallbacks
}

// Converged reports whether the last good gradient fell below the threshold.
func (e *Executor) Converged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.converged
}

// Cache returns the tile cache the executor reads through.
func (e *Executor) Cache() *tilecache.Cache { return e.cache }
