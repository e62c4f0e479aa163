package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// TaskQueue is the default Temporal task queue for descent work.
const TaskQueue = "descent-queue"

// BatchDescentInput is the input for the batch descent workflow.
type BatchDescentInput struct {
	Starts []domain.GeoPoint
	Params domain.DescentParams
}

// TrajectoryRef identifies a stored trajectory produced by an activity.
type TrajectoryRef struct {
	Index          int                     `json:"index"`
	ID             string                  `json:"id"`
	Status         domain.TrajectoryStatus `json:"status"`
	StepsRun       int                     `json:"steps_run"`
	FinalElevation float64                 `json:"final_elevation"`
}

// BatchDescentResult lists finished trajectories and the indexes of starts
// that failed.
type BatchDescentResult struct {
	Trajectories []TrajectoryRef `json:"trajectories"`
	Failed       []int           `json:"failed,omitempty"`
}

// BatchDescentWorkflow runs one RunDescent activity per start point in
// parallel. A failed start is recorded and does not stop the others; the
// workflow fails only when every start failed.
func BatchDescentWorkflow(ctx workflow.Context, input BatchDescentInput) (*BatchDescentResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch descent workflow", "starts", len(input.Starts), "steps", input.Params.Steps)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeInvalidRequest},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	futures := make([]workflow.Future, len(input.Starts))
	for i, start := range input.Starts {
		futures[i] = workflow.ExecuteActivity(ctx, "RunDescent", start, input.Params)
	}

	result := &BatchDescentResult{Trajectories: []TrajectoryRef{}}
	for i, f := range futures {
		var ref TrajectoryRef
		if err := f.Get(ctx, &ref); err != nil {
			logger.Warn("trajectory failed", "index", i, "error", err)
			result.Failed = append(result.Failed, i)
			continue
		}
		ref.Index = i
		result.Trajectories = append(result.Trajectories, ref)
	}

	if len(input.Starts) > 0 && len(result.Failed) == len(input.Starts) {
		return nil, temporal.NewApplicationError("every trajectory in the batch failed", "BatchFailed")
	}

	logger.Info("Batch descent finished", "ok", len(result.Trajectories), "failed", len(result.Failed))
	return result, nil
}
