package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sw1227/gradient-descent-map/internal/core/descent"
	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/tilecache"
	"github.com/sw1227/gradient-descent-map/internal/pkg/geospatial"
	"github.com/sw1227/gradient-descent-map/internal/pkg/logging"
	"github.com/sw1227/gradient-descent-map/internal/pkg/metrics"
)

// DescentConfig holds service-wide defaults and limits.
type DescentConfig struct {
	Zoom              int
	Epsilon           float64
	Steps             int
	StepLimit         int
	GradientThreshold float64
	CacheCapacity     int
	SharedCache       bool
	Concurrency       int
	ResultTTLSeconds  int
	MaxBatch          int
}

// DefaultDescentConfig mirrors the config package defaults.
func DefaultDescentConfig() DescentConfig {
	return DescentConfig{
		Zoom:             13,
		Epsilon:          1,
		Steps:            100,
		StepLimit:        10000,
		CacheCapacity:    tilecache.DefaultCapacity,
		Concurrency:      4,
		ResultTTLSeconds: 3600,
		MaxBatch:         64,
	}
}

// DescentService drives trajectories and stores their results.
type DescentService struct {
	source    ports.TileSource
	repo      ports.TrajectoryRepository // optional
	publisher ports.EventPublisher       // optional
	results   ports.CacheService         // optional
	shared    *tilecache.Cache           // used when cfg.SharedCache
	cfg       DescentConfig
}

// NewDescentService creates a new DescentService. repo, publisher and results
// may be nil.
func NewDescentService(
	source ports.TileSource,
	repo ports.TrajectoryRepository,
	publisher ports.EventPublisher,
	results ports.CacheService,
	shared *tilecache.Cache,
	cfg DescentConfig,
) *DescentService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SharedCache && shared == nil {
		shared = tilecache.New(cfg.CacheCapacity)
	}
	return &DescentService{
		source:    source,
		repo:      repo,
		publisher: publisher,
		results:   results,
		shared:    shared,
		cfg:       cfg,
	}
}

// Defaults returns the parameters used for fields a request leaves unset.
func (s *DescentService) Defaults() domain.DescentParams {
	return domain.DescentParams{
		Zoom:              s.cfg.Zoom,
		Epsilon:           s.cfg.Epsilon,
		Steps:             s.cfg.Steps,
		GradientThreshold: s.cfg.GradientThreshold,
	}
}

// Validate checks a start point and parameters against the service limits.
func (s *DescentService) Validate(start domain.GeoPoint, p domain.DescentParams) error {
	if err := validatePoint(start); err != nil {
		return err
	}
	if p.Zoom < domain.MinZoom || p.Zoom > domain.MaxZoom {
		return fmt.Errorf("%w: %d", domain.ErrInvalidZoom, p.Zoom)
	}
	if !(p.Epsilon > 0) || math.IsInf(p.Epsilon, 0) {
		return fmt.Errorf("%w: epsilon must be a positive number", domain.ErrInvalidRequest)
	}
	if p.Steps < 0 || (s.cfg.StepLimit > 0 && p.Steps > s.cfg.StepLimit) {
		return fmt.Errorf("%w: steps must be between 0 and %d", domain.ErrInvalidRequest, s.cfg.StepLimit)
	}
	if p.GradientThreshold < 0 || math.IsNaN(p.GradientThreshold) {
		return fmt.Errorf("%w: gradient_threshold must not be negative", domain.ErrInvalidRequest)
	}
	return nil
}

// Run descends from start for params.Steps steps and returns the finished
// trajectory. onStep, when set, sees every step as it happens; without it a
// cached result for identical input may be returned. Cancelling ctx stops
// the run between steps and the trajectory is kept with status cancelled.
func (s *DescentService) Run(ctx context.Context, start domain.GeoPoint, params domain.DescentParams, onStep descent.StepFunc) (*domain.Trajectory, error) {
	if err := s.Validate(start, params); err != nil {
		return nil, err
	}

	key := resultKey(start, params)
	if onStep == nil {
		if t, ok := s.cachedResult(ctx, key); ok {
			metrics.ResultCacheHits.Inc()
			return t, nil
		}
	}

	metrics.ActiveTrajectories.Inc()
	defer metrics.ActiveTrajectories.Dec()

	traj := domain.NewTrajectory(uuid.NewString(), start, params)
	logger := logging.FromContext(ctx).With("trajectory_id", traj.ID)

	opts := []descent.Option{
		descent.WithCapacity(s.cfg.CacheCapacity),
		descent.WithThreshold(params.GradientThreshold),
		descent.WithLogger(logger),
	}
	if s.cfg.SharedCache {
		opts = append(opts, descent.WithCache(s.shared))
	}

	ex := descent.NewExecutor(s.source, start, descent.Config{Zoom: params.Zoom, Epsilon: params.Epsilon},
		func(step domain.Step) {
			traj.Append(step.Position)
			if s.publisher != nil {
				if err := s.publisher.PublishStep(ctx, traj.ID, step); err != nil {
					logger.Warn("publish step failed", "step", step.Index, "error", err)
				}
			}
			if onStep != nil {
				onStep(step)
			}
		}, opts...)

	_, runErr := ex.Run(ctx, params.Steps)
	switch {
	case runErr != nil:
		traj.Status = domain.TrajectoryCancelled
	case ex.Converged():
		traj.Status = domain.TrajectoryConverged
	default:
		traj.Status = domain.TrajectoryCompleted
	}

	// finish even when the caller has gone away
	ctx = context.WithoutCancel(ctx)
	traj.Summary = s.summarize(ctx, traj, ex)
	metrics.Trajectories.WithLabelValues(string(traj.Status)).Inc()
	logger.Info("descent finished",
		"status", traj.Status,
		"steps", traj.Summary.StepsRun,
		"fallbacks", traj.Summary.Fallbacks,
		"final_elevation", traj.Summary.FinalElevation)

	if s.repo != nil {
		if err := s.repo.Save(ctx, traj); err != nil {
			return nil, fmt.Errorf("save trajectory: %w", err)
		}
	}
	if s.publisher != nil {
		_ = s.publisher.PublishCompleted(ctx, traj)
	}
	if traj.Status != domain.TrajectoryCancelled {
		s.storeResult(ctx, key, traj)
	}
	return traj, nil
}

// RunBatch runs one trajectory per start point with the same parameters,
// at most cfg.Concurrency at a time. Results keep the order of starts.
func (s *DescentService) RunBatch(ctx context.Context, starts []domain.GeoPoint, params domain.DescentParams) ([]*domain.Trajectory, error) {
	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: at least one start point is required", domain.ErrInvalidRequest)
	}
	if s.cfg.MaxBatch > 0 && len(starts) > s.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: at most %d start points", domain.ErrInvalidRequest, s.cfg.MaxBatch)
	}
	for _, p := range starts {
		if err := s.Validate(p, params); err != nil {
			return nil, err
		}
	}

	out := make([]*domain.Trajectory, len(starts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range starts {
		g.Go(func() error {
			t, err := s.Run(gctx, p, params, nil)
			if err != nil {
				return fmt.Errorf("trajectory %d: %w", i, err)
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a stored trajectory.
func (s *DescentService) Get(ctx context.Context, id string) (*domain.Trajectory, error) {
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

// List returns a page of stored trajectories, newest first, and the total count.
func (s *DescentService) List(ctx context.Context, offset, limit int) ([]domain.Trajectory, int, error) {
	if s.repo == nil {
		return []domain.Trajectory{}, 0, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *DescentService) summarize(ctx context.Context, t *domain.Trajectory, ex *descent.Executor) domain.TrajectorySummary {
	last := t.Last()
	sum := domain.TrajectorySummary{
		StepsRun:      t.StepsRun(),
		Fallbacks:     ex.Fallbacks(),
		PathLengthM:   geospatial.PathLength(t.History),
		DisplacementM: geospatial.Haversine(t.Start.Lat, t.Start.Lon, last.Lat, last.Lon),
		Bounds:        geospatial.BoundsOf(t.History),
	}

	sampler := descent.NewSampler(s.source, ex.Cache())
	startEl, err1 := sampler.Elevation(ctx, geospatial.GeoToPixel(t.Start, t.Params.Zoom))
	finalEl, err2 := sampler.Elevation(ctx, ex.Pixel())
	if err1 != nil || err2 != nil {
		sum.ElevationFailed = true
	} else {
		sum.StartElevation, sum.FinalElevation = startEl, finalEl
	}

	stats := ex.Cache().Stats()
	sum.TilesFetched, sum.CacheHits = stats.Loads, stats.Hits
	return sum
}

func (s *DescentService) cachedResult(ctx context.Context, key string) (*domain.Trajectory, bool) {
	if s.results == nil {
		return nil, false
	}
	b, err := s.results.Get(ctx, key)
	if err != nil || len(b) == 0 {
		return nil, false
	}
	var t domain.Trajectory
	if err := json.Unmarshal(b, &t); err != nil {
		logging.FromContext(ctx).Warn("discarding unreadable cached trajectory", "key", key, "error", err)
		return nil, false
	}
	return &t, true
}

func (s *DescentService) storeResult(ctx context.Context, key string, t *domain.Trajectory) {
	if s.results == nil {
		return
	}
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := s.results.Set(ctx, key, b, s.cfg.ResultTTLSeconds); err != nil {
		logging.FromContext(ctx).Warn("cache trajectory failed", "key", key, "error", err)
	}
}

func resultKey(start domain.GeoPoint, p domain.DescentParams) string {
	return fmt.Sprintf("descent:%.7f:%.7f:%d:%g:%d:%g",
		start.Lat, start.Lon, p.Zoom, p.Epsilon, p.Steps, p.GradientThreshold)
}

func validatePoint(p domain.GeoPoint) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("%w: coordinates must be finite", domain.ErrInvalidRequest)
	}
	if math.Abs(p.Lat) > geospatial.MaxLatitude {
		return fmt.Errorf("%w: latitude %g outside ±%g", domain.ErrInvalidRequest, p.Lat, geospatial.MaxLatitude)
	}
	return nil
}
