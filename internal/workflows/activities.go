package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
)

// errTypeInvalidRequest marks activity errors that retrying cannot fix.
const errTypeInvalidRequest = "InvalidRequest"

// DescentActivities holds the activity implementations for the batch descent workflow.
type DescentActivities struct {
	Descent *usecases.DescentService
}

// RunDescent drives one trajectory to completion and returns a reference to
// the stored result.
func (a *DescentActivities) RunDescent(ctx context.Context, start domain.GeoPoint, params domain.DescentParams) (*TrajectoryRef, error) {
	logger := activity.GetLogger(ctx)

	t, err := a.Descent.Run(ctx, start, params, nil)
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidZoom) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidRequest, err)
	}
	if err != nil {
		return nil, fmt.Errorf("run descent: %w", err)
	}

	logger.Info("trajectory finished", "id", t.ID, "status", t.Status, "steps", t.Summary.StepsRun)
	return &TrajectoryRef{
		ID:             t.ID,
		Status:         t.Status,
		StepsRun:       t.Summary.StepsRun,
		FinalElevation: t.Summary.FinalElevation,
	}, nil
}
