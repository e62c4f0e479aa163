package ports

import (
	"context"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// TrajectoryRepository persists finished trajectories.
type TrajectoryRepository interface {
	Save(ctx context.Context, t *domain.Trajectory) error
	GetByID(ctx context.Context, id string) (*domain.Trajectory, error)
	List(ctx context.Context, offset, limit int) ([]domain.Trajectory, int, error)
}
