package temporaladapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/workflows"
)

// Starter implements ports.WorkflowStarter with a Temporal client.
type Starter struct {
	client    client.Client
	taskQueue string
}

// Dial connects to the Temporal frontend.
func Dial(hostPort, namespace, taskQueue string) (*Starter, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	if taskQueue == "" {
		taskQueue = workflows.TaskQueue
	}
	return &Starter{client: c, taskQueue: taskQueue}, nil
}

// StartBatchDescent starts a BatchDescentWorkflow and returns its workflow id.
func (s *Starter) StartBatchDescent(ctx context.Context, starts []domain.GeoPoint, params domain.DescentParams) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        "batch-descent-" + uuid.NewString(),
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, workflows.BatchDescentWorkflow, workflows.BatchDescentInput{
		Starts: starts,
		Params: params,
	})
	if err != nil {
		return "", fmt.Errorf("start workflow: %w", err)
	}
	return run.GetID(), nil
}

// Client exposes the underlying client for workers.
func (s *Starter) Client() client.Client { return s.client }

// Close releases the client.
func (s *Starter) Close() {
	s.client.Close()
}
