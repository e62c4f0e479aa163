package descent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sw1227/gradient-descent-map/internal/core/descent"
	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/pkg/geospatial"
)

// --- Stub TileSource ---

// stubSource builds every tile from a function of absolute pixel position.
type stubSource struct {
	elevation func(x, y int) float64
	fetchFn   func(ctx context.Context, addr domain.TileAddress) error
	calls     atomic.Int32
}

func (s *stubSource) FetchTile(ctx context.Context, addr domain.TileAddress) (domain.TileGrid, error) {
	s.calls.Add(1)
	if s.fetchFn != nil {
		if err := s.fetchFn(ctx, addr); err != nil {
			return nil, err
		}
	}
	grid := make(domain.TileGrid, domain.TileSize)
	for r := range grid {
		grid[r] = make([]float64, domain.TileSize)
		for c := range grid[r] {
			if s.elevation != nil {
				grid[r][c] = s.elevation(addr.X*domain.TileSize+c, addr.Y*domain.TileSize+r)
			}
		}
	}
	return grid, nil
}

// cell holds the elevations around pixel (1000, 1000).
func cell(x, y int) float64 {
	switch {
	case x == 1000 && y == 1000:
		return 100 // NW
	case x == 1001 && y == 1000:
		return 90 // NE
	case x == 1000 && y == 1001:
		return 95 // SW
	case x == 1001 && y == 1001:
		return 80 // SE
	}
	return 0
}

// startAt returns a geographic point that projects onto pixel (x, y).
func startAt(x, y float64, zoom int) domain.GeoPoint {
	return geospatial.PixelToGeo(domain.PixelPoint{X: x, Y: y, Zoom: zoom})
}

// --- Tests ---

func TestSampler_Elevation(t *testing.T) {
	src := &stubSource{elevation: cell}
	s := descent.NewSampler(src, tilecache.New(4))

	e, err := s.Lookup(context.Background(), domain.PixelPoint{X: 1001.7, Y: 1000.2, Zoom: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Meters != 90 {
		t.Errorf("expected 90, got %v", e.Meters)
	}
	if e.Tile != (domain.TileAddress{Zoom: 15, X: 3, Y: 3}) {
		t.Errorf("unexpected tile %+v", e.Tile)
	}
	if e.Offset != (domain.TileOffset{X: 233, Y: 232}) {
		t.Errorf("unexpected offset %+v", e.Offset)
	}
}

func TestSampler_PropagatesSourceErrors(t *testing.T) {
	boom := &domain.FetchError{URL: "x", Status: 503}
	src := &stubSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) error { return boom }}
	s := descent.NewSampler(src, nil)

	_, err := s.Elevation(context.Background(), domain.PixelPoint{X: 1, Y: 1, Zoom: 3})
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestEstimator_UpperLeftTriangle(t *testing.T) {
	est := descent.NewEstimator(descent.NewSampler(&stubSource{elevation: cell}, nil), nil)

	g, err := est.Estimate(context.Background(), domain.PixelPoint{X: 1000.2, Y: 1000.3, Zoom: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g != (domain.Gradient{DX: -10, DY: -5}) {
		t.Errorf("expected {-10 -5}, got %+v", g)
	}
}

func TestEstimator_DiagonalUsesLowerRightTriangle(t *testing.T) {
	est := descent.NewEstimator(descent.NewSampler(&stubSource{elevation: cell}, nil), nil)

	g, err := est.Estimate(context.Background(), domain.PixelPoint{X: 1000.5, Y: 1000.5, Zoom: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// dx = SE - SW, dy = SE - NE
	if g != (domain.Gradient{DX: -15, DY: -10}) {
		t.Errorf("expected {-15 -10}, got %+v", g)
	}
}

func TestEstimator_GradientFallsBackToZero(t *testing.T) {
	src := &stubSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) error {
		return &domain.DecodeError{Row: 1, Err: errors.New("bad")}
	}}
	var reported []error
	est := descent.NewEstimator(descent.NewSampler(src, nil), func(p domain.PixelPoint, err error) {
		reported = append(reported, err)
	})

	g := est.Gradient(context.Background(), domain.PixelPoint{X: 10, Y: 10, Zoom: 12})
	if g != (domain.Gradient{}) {
		t.Errorf("expected zero gradient, got %+v", g)
	}
	if len(reported) != 1 {
		t.Errorf("expected one reported failure, got %d", len(reported))
	}
}

func TestEstimator_FailedCornerKeepsOthersCached(t *testing.T) {
	// corner pixels (255,0), (256,0) and (255,1) span tiles 0/0 and 1/0
	src := &stubSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) error {
		if addr.X == 1 {
			return &domain.FetchError{URL: "tile", Status: 500}
		}
		return nil
	}}
	cache := tilecache.New(8)
	est := descent.NewEstimator(descent.NewSampler(src, cache), nil)

	if _, err := est.Estimate(context.Background(), domain.PixelPoint{X: 255, Y: 0, Zoom: 10}); err == nil {
		t.Fatal("expected an error from the failing corner")
	}
	if _, ok := cache.Get(domain.TileAddress{Zoom: 10, X: 0, Y: 0}); !ok {
		t.Error("successful corner tile should be cached")
	}
	if _, ok := cache.Get(domain.TileAddress{Zoom: 10, X: 1, Y: 0}); ok {
		t.Error("failed tile must not be cached")
	}
}

func TestExecutor_EndToEndStep(t *testing.T) {
	src := &stubSource{elevation: cell}
	var got []domain.Step
	ex := descent.NewExecutor(src, startAt(1000, 1000, 15), descent.Config{Zoom: 15, Epsilon: 1},
		func(s domain.Step) { got = append(got, s) })

	if p := ex.Pixel(); p.X != 1000 || p.Y != 1000 {
		t.Fatalf("expected start pixel (1000,1000), got (%v,%v)", p.X, p.Y)
	}

	step, err := ex.Step(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Gradient != (domain.Gradient{DX: -10, DY: -5}) {
		t.Errorf("expected gradient {-10 -5}, got %+v", step.Gradient)
	}
	if step.Pixel != (domain.PixelPoint{X: 1010, Y: 1005, Zoom: 15}) {
		t.Errorf("expected pixel (1010,1005,15), got %+v", step.Pixel)
	}
	if step.Index != 1 || step.Fallback {
		t.Errorf("unexpected step metadata %+v", step)
	}
	want := geospatial.PixelToGeo(domain.PixelPoint{X: 1010, Y: 1005, Zoom: 15})
	if step.Position != want {
		t.Errorf("expected position %+v, got %+v", want, step.Position)
	}
	if len(got) != 1 || got[0] != step {
		t.Errorf("callback should receive the step once, got %v", got)
	}
}

func TestExecutor_FallbackHoldsPosition(t *testing.T) {
	src := &stubSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) error {
		return &domain.FetchError{URL: "tile", Err: errors.New("connection refused")}
	}}
	var callbacks, hooks int
	ex := descent.NewExecutor(src, startAt(500, 700, 14), descent.Config{Zoom: 14, Epsilon: 3},
		func(domain.Step) { callbacks++ },
		descent.WithFallbackHook(func(domain.PixelPoint, error) { hooks++ }),
		descent.WithThreshold(1),
	)
	before := ex.Pixel()

	for i := 0; i < 3; i++ {
		step, err := ex.Step(context.Background())
		if err != nil {
			t.Fatalf("step must not fail, got %v", err)
		}
		if !step.Fallback {
			t.Error("expected a fallback step")
		}
	}
	if ex.Pixel() != before {
		t.Errorf("position moved from %+v to %+v", before, ex.Pixel())
	}
	if callbacks != 3 || hooks != 3 {
		t.Errorf("expected 3 callbacks and 3 hooks, got %d and %d", callbacks, hooks)
	}
	if ex.Converged() {
		t.Error("a zero fallback gradient must not count as convergence")
	}
	if ex.Fallbacks() != 3 {
		t.Errorf("expected 3 fallbacks, got %d", ex.Fallbacks())
	}
}

func TestExecutor_RunFixedCount(t *testing.T) {
	src := &stubSource{elevation: func(x, y int) float64 { return float64(x + y) }}
	var n int
	ex := descent.NewExecutor(src, startAt(5000, 5000, 13), descent.Config{Zoom: 13, Epsilon: 0.5},
		func(domain.Step) { n++ })

	steps, err := ex.Run(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps != 4 || n != 4 || ex.StepsRun() != 4 {
		t.Errorf("expected 4 steps, got run=%d callbacks=%d executor=%d", steps, n, ex.StepsRun())
	}
	// slope 1 in both axes moves -0.5 pixels per step
	if p := ex.Pixel(); p.X != 4998 || p.Y != 4998 {
		t.Errorf("expected (4998,4998), got (%v,%v)", p.X, p.Y)
	}
}

func TestExecutor_ThresholdStopsEarly(t *testing.T) {
	src := &stubSource{elevation: func(x, y int) float64 { return 42 }}
	ex := descent.NewExecutor(src, startAt(300, 300, 10), descent.Config{Zoom: 10, Epsilon: 1}, nil,
		descent.WithThreshold(0.5))

	steps, err := ex.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if steps != 1 || !ex.Converged() {
		t.Errorf("expected convergence after 1 step, got %d (converged=%v)", steps, ex.Converged())
	}
}

func TestExecutor_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := descent.NewExecutor(&stubSource{}, startAt(300, 300, 10), descent.Config{Zoom: 10, Epsilon: 1}, nil)

	steps, err := ex.Run(ctx, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if steps != 0 {
		t.Errorf("expected no steps, got %d", steps)
	}
}

func TestExecutor_SharedCache(t *testing.T) {
	src := &stubSource{elevation: cell}
	shared := tilecache.New(16)
	cfg := descent.Config{Zoom: 15, Epsilon: 1}

	a := descent.NewExecutor(src, startAt(1000, 1000, 15), cfg, nil, descent.WithCache(shared))
	b := descent.NewExecutor(src, startAt(1000, 1000, 15), cfg, nil, descent.WithCache(shared))
	if a.Cache() != shared || b.Cache() != shared {
		t.Fatal("executors should use the shared cache")
	}

	var wg sync.WaitGroup
	for _, ex := range []*descent.Executor{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex.Step(context.Background())
		}()
	}
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected one fetch of the shared tile, got %d", got)
	}
}

func TestExecutor_PrivateCacheByDefault(t *testing.T) {
	src := &stubSource{}
	cfg := descent.Config{Zoom: 12, Epsilon: 1}
	a := descent.NewExecutor(src, startAt(10, 10, 12), cfg, nil)
	b := descent.NewExecutor(src, startAt(10, 10, 12), cfg, nil, descent.WithCapacity(5))
	if a.Cache() == b.Cache() {
		t.Error("executors must not share a cache unless asked")
	}
	if b.Cache().Capacity() != 5 {
		t.Errorf("expected capacity 5, got %d", b.Cache().Capacity())
	}
}

func TestExecutor_StepInFlight(t *testing.T) {
	entered := make(chan struct{}, 3)
	release := make(chan struct{})
	src := &stubSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) error {
		entered <- struct{}{}
		<-release
		return nil
	}}
	ex := descent.NewExecutor(src, startAt(10, 10, 12), descent.Config{Zoom: 12, Epsilon: 1}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := ex.Step(context.Background())
		done <- err
	}()
	<-entered

	if _, err := ex.Step(context.Background()); !errors.Is(err, domain.ErrStepInFlight) {
		t.Errorf("expected ErrStepInFlight, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first step failed: %v", err)
	}
	if ex.StepsRun() != 1 {
		t.Errorf("expected 1 step, got %d", ex.StepsRun())
	}
}

func TestExecutor_CancelledStepIsNotAFallback(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	src := &stubSource{fetchFn: func(ctx context.Context, addr domain.TileAddress) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}}
	var callbacks, hooks int
	ex := descent.NewExecutor(src, startAt(10, 10, 12), descent.Config{Zoom: 12, Epsilon: 1},
		func(domain.Step) { callbacks++ },
		descent.WithFallbackHook(func(domain.PixelPoint, error) { hooks++ }),
	)
	before := ex.Pixel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	if _, err := ex.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if hooks != 0 || ex.Fallbacks() != 0 {
		t.Errorf("cancellation must not count as a fallback: hooks=%d fallbacks=%d", hooks, ex.Fallbacks())
	}
	if callbacks != 0 || ex.StepsRun() != 0 {
		t.Errorf("expected no completed step, got callbacks=%d steps=%d", callbacks, ex.StepsRun())
	}
	if ex.Pixel() != before {
		t.Errorf("position moved from %+v to %+v", before, ex.Pixel())
	}
}
