package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// TrajectoryRepo implements ports.TrajectoryRepository with pgx.
type TrajectoryRepo struct {
	db *DB
}

// NewTrajectoryRepo creates a new TrajectoryRepo.
func NewTrajectoryRepo(db *DB) *TrajectoryRepo {
	return &TrajectoryRepo{db: db}
}

// Save inserts a finished trajectory, replacing a previous row with the same id.
func (r *TrajectoryRepo) Save(ctx context.Context, t *domain.Trajectory) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	summary, err := json.Marshal(t.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO trajectories (id, start_lat, start_lon, zoom, epsilon, steps, threshold,
		                          status, history, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, history = EXCLUDED.history, summary = EXCLUDED.summary
	`, t.ID, t.Start.Lat, t.Start.Lon, t.Params.Zoom, t.Params.Epsilon, t.Params.Steps,
		t.Params.GradientThreshold, string(t.Status), history, summary, t.CreatedAt)
	return err
}

const trajectoryColumns = `id, start_lat, start_lon, zoom, epsilon, steps, threshold,
	       status, history, summary, created_at`

// GetByID returns a trajectory by id, or domain.ErrNotFound.
func (r *TrajectoryRepo) GetByID(ctx context.Context, id string) (*domain.Trajectory, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+trajectoryColumns+` FROM trajectories WHERE id = $1`, id)
	t, err := scanTrajectory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns a page of trajectories, newest first, and the total count.
func (r *TrajectoryRepo) List(ctx context.Context, offset, limit int) ([]domain.Trajectory, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM trajectories`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+trajectoryColumns+`
		FROM trajectories
		ORDER BY created_at DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Trajectory{}
	for rows.Next() {
		t, err := scanTrajectory(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func scanTrajectory(row pgx.Row) (*domain.Trajectory, error) {
	var (
		t                domain.Trajectory
		status           string
		history, summary []byte
	)
	if err := row.Scan(
		&t.ID, &t.Start.Lat, &t.Start.Lon, &t.Params.Zoom, &t.Params.Epsilon, &t.Params.Steps,
		&t.Params.GradientThreshold, &status, &history, &summary, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = domain.TrajectoryStatus(status)
	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if err := json.Unmarshal(summary, &t.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &t, nil
}
