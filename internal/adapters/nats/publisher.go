package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// Subject prefixes for descent events. The trajectory id is appended.
const (
	SubjectStep      = "descent.step."
	SubjectCompleted = "descent.completed."
)

// StepEvent is the payload published for every descent step.
type StepEvent struct {
	TrajectoryID string      `json:"trajectory_id"`
	Step         domain.Step `json:"step"`
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "DESCENT_STEPS",
			Subjects:  []string{SubjectStep + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.MemoryStorage,
		},
		{
			Name:      "DESCENT_RESULTS",
			Subjects:  []string{SubjectCompleted + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishStep publishes one step on descent.step.<id>.
func (p *Publisher) PublishStep(ctx context.Context, trajectoryID string, step domain.Step) error {
	data, err := json.Marshal(StepEvent{TrajectoryID: trajectoryID, Step: step})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectStep+trajectoryID, data, nats.Context(ctx))
	return err
}

// PublishCompleted publishes the finished trajectory on descent.completed.<id>.
func (p *Publisher) PublishCompleted(ctx context.Context, t *domain.Trajectory) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectCompleted+t.ID, data, nats.Context(ctx))
	return err
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
