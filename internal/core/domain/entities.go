package domain

import (
	"time"
)

// DescentParams configures one gradient-descent run.
type DescentParams struct {
	Zoom    int     `json:"zoom"`
	Epsilon float64 `json:"epsilon"`
	Steps   int     `json:"steps"`

	// GradientThreshold stops the run early once a successfully estimated
	// gradient is shorter than it. Zero keeps the fixed step count.
	GradientThreshold float64 `json:"gradient_threshold,omitempty"`
}

// Step is reported once per completed descent step.
type Step struct {
	Index    int        `json:"index"` // 1-based
	Position GeoPoint   `json:"position"`
	Pixel    PixelPoint `json:"pixel"`
	Gradient Gradient   `json:"gradient"`
	Fallback bool       `json:"fallback,omitempty"` // gradient estimation failed, position held
}

// TrajectoryStatus describes how a run ended.
type TrajectoryStatus string

const (
	TrajectoryRunning   TrajectoryStatus = "running"
	TrajectoryCompleted TrajectoryStatus = "completed"
	TrajectoryConverged TrajectoryStatus = "converged"
	TrajectoryCancelled TrajectoryStatus = "cancelled"
)

// Trajectory is the ordered history of one descent. History[0] is Start and
// exactly one point is appended per completed step.
type Trajectory struct {
	ID        string            `json:"id"`
	Start     GeoPoint          `json:"start"`
	Params    DescentParams     `json:"params"`
	History   []GeoPoint        `json:"history"`
	Status    TrajectoryStatus  `json:"status"`
	Summary   TrajectorySummary `json:"summary"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewTrajectory starts a trajectory whose history holds only the start point.
func NewTrajectory(id string, start GeoPoint, params DescentParams) *Trajectory {
	return &Trajectory{
		ID:        id,
		Start:     start,
		Params:    params,
		History:   []GeoPoint{start},
		Status:    TrajectoryRunning,
		CreatedAt: time.Now().UTC(),
	}
}

// Append records the position reported by one completed step.
func (t *Trajectory) Append(p GeoPoint) {
	t.History = append(t.History, p)
}

// Last returns the most recent position.
func (t *Trajectory) Last() GeoPoint {
	return t.History[len(t.History)-1]
}

// StepsRun is the number of completed steps.
func (t *Trajectory) StepsRun() int {
	return len(t.History) - 1
}

// TrajectorySummary is computed once a run has ended.
type TrajectorySummary struct {
	StepsRun        int     `json:"steps_run"`
	Fallbacks       int     `json:"fallbacks"`
	StartElevation  float64 `json:"start_elevation"`
	FinalElevation  float64 `json:"final_elevation"`
	PathLengthM     float64 `json:"path_length_m"`
	DisplacementM   float64 `json:"displacement_m"`
	Bounds          Bounds  `json:"bounds"`
	TilesFetched    int64   `json:"tiles_fetched"`
	CacheHits       int64   `json:"cache_hits"`
	ElevationFailed bool    `json:"elevation_failed,omitempty"`
}

// Elevation is the result of a single point lookup.
type Elevation struct {
	Point  GeoPoint    `json:"point"`
	Pixel  PixelPoint  `json:"pixel"`
	Tile   TileAddress `json:"tile"`
	Offset TileOffset  `json:"offset"`
	Meters float64     `json:"meters"`
}

// GradientReading is a strict gradient probe at one point.
type GradientReading struct {
	Point    GeoPoint   `json:"point"`
	Pixel    PixelPoint `json:"pixel"`
	Gradient Gradient   `json:"gradient"`
	Norm     float64    `json:"norm"`
}
