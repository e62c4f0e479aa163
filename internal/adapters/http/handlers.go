package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// DescentRequest starts a single descent. Unset parameters take the
// service defaults.
type DescentRequest struct {
	Start *domain.GeoPoint `json:"start"`
	domain.DescentParams
}

// BatchDescentRequest starts one descent per start point with shared
// parameters.
type BatchDescentRequest struct {
	Starts []domain.GeoPoint `json:"starts"`
	domain.DescentParams
}

// CreateDescentHandler runs one descent to completion and returns the
// trajectory.
func CreateDescentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := DescentRequest{DescentParams: deps.Descents.Defaults()}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Start == nil {
			return errBadRequest(c, "start is required")
		}

		t, err := deps.Descents.Run(c.UserContext(), *req.Start, req.DescentParams, nil)
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Location("/v1/descents/" + t.ID)
		return c.Status(fiber.StatusCreated).JSON(t)
	}
}

// BatchDescentHandler runs a batch synchronously. The response keeps the
// order of the submitted start points.
func BatchDescentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := BatchDescentRequest{DescentParams: deps.Descents.Defaults()}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		ts, err := deps.Descents.RunBatch(c.UserContext(), req.Starts, req.DescentParams)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"data": ts})
	}
}

// AsyncDescentHandler hands a batch to the durable workflow engine and
// returns the workflow id.
func AsyncDescentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Workflows == nil {
			return errUnavailable(c, "async descents are not enabled")
		}

		req := BatchDescentRequest{DescentParams: deps.Descents.Defaults()}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Starts) == 0 {
			return errBadRequest(c, "starts must not be empty")
		}
		for _, p := range req.Starts {
			if err := deps.Descents.Validate(p, req.DescentParams); err != nil {
				return errFromDomain(c, err)
			}
		}

		id, err := deps.Workflows.StartBatchDescent(c.UserContext(), req.Starts, req.DescentParams)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"workflow_id": id,
			"starts":      len(req.Starts),
		})
	}
}

// ListDescentsHandler returns stored trajectories, newest first.
func ListDescentsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		ts, total, err := deps.Descents.List(c.UserContext(), offset, limit)
		if err != nil {
			return errFromDomain(c, err)
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: ts, Pagination: pg})
	}
}

// GetDescentHandler returns one stored trajectory.
func GetDescentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return errBadRequest(c, "id must be a UUID")
		}

		t, err := deps.Descents.Get(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(t)
	}
}

// ElevationHandler returns the elevation at lat/lon.
func ElevationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, zoom, err := pointQuery(c, deps.Descents.Defaults().Zoom)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		e, err := deps.Elevation.At(c.UserContext(), p, zoom)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(e)
	}
}

// GradientHandler returns the terrain gradient at lat/lon. Sampling
// failures are reported rather than flattened to zero.
func GradientHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, zoom, err := pointQuery(c, deps.Descents.Defaults().Zoom)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		g, err := deps.Elevation.GradientAt(c.UserContext(), p, zoom)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(g)
	}
}

// pointQuery reads the required lat and lon parameters and an optional zoom.
func pointQuery(c *fiber.Ctx, defaultZoom int) (domain.GeoPoint, int, error) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return domain.GeoPoint{}, 0, fiber.NewError(400, "lat is required and must be a number")
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		return domain.GeoPoint{}, 0, fiber.NewError(400, "lon is required and must be a number")
	}
	return domain.GeoPoint{Lat: lat, Lon: lon}, c.QueryInt("zoom", defaultZoom), nil
}
