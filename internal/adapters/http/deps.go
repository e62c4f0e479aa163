package http

import (
	"github.com/nats-io/nats.go"

	"github.com/sw1227/gradient-descent-map/internal/adapters/postgres"
	"github.com/sw1227/gradient-descent-map/internal/adapters/valkey"
	"github.com/sw1227/gradient-descent-map/internal/core/ports"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Descents  *usecases.DescentService
	Elevation *usecases.ElevationService
	Workflows ports.WorkflowStarter // nil when Temporal is disabled
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
