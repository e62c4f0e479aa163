package ports

import (
	"context"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// TileSource fetches and decodes one elevation tile. Implementations return
// domain.ErrInvalidZoom, *domain.FetchError or *domain.DecodeError.
type TileSource interface {
	FetchTile(ctx context.Context, addr domain.TileAddress) (domain.TileGrid, error)
}

// EventPublisher publishes descent events to a message broker.
type EventPublisher interface {
	PublishStep(ctx context.Context, trajectoryID string, step domain.Step) error
	PublishCompleted(ctx context.Context, t *domain.Trajectory) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// WorkflowStarter launches durable batch descents.
type WorkflowStarter interface {
	StartBatchDescent(ctx context.Context, starts []domain.GeoPoint, params domain.DescentParams) (string, error)
}
