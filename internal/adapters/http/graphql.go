package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	pixelType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PixelPoint",
		Fields: graphql.Fields{
			"x":    &graphql.Field{Type: graphql.Float},
			"y":    &graphql.Field{Type: graphql.Float},
			"zoom": &graphql.Field{Type: graphql.Int},
		},
	})

	tileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileAddress",
		Fields: graphql.Fields{
			"z": &graphql.Field{Type: graphql.Int},
			"x": &graphql.Field{Type: graphql.Int},
			"y": &graphql.Field{Type: graphql.Int},
		},
	})

	paramsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DescentParams",
		Fields: graphql.Fields{
			"zoom":               &graphql.Field{Type: graphql.Int},
			"epsilon":            &graphql.Field{Type: graphql.Float},
			"steps":              &graphql.Field{Type: graphql.Int},
			"gradient_threshold": &graphql.Field{Type: graphql.Float},
		},
	})

	summaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TrajectorySummary",
		Fields: graphql.Fields{
			"steps_run":        &graphql.Field{Type: graphql.Int},
			"fallbacks":        &graphql.Field{Type: graphql.Int},
			"start_elevation":  &graphql.Field{Type: graphql.Float},
			"final_elevation":  &graphql.Field{Type: graphql.Float},
			"path_length_m":    &graphql.Field{Type: graphql.Float},
			"displacement_m":   &graphql.Field{Type: graphql.Float},
			"elevation_failed": &graphql.Field{Type: graphql.Boolean},
		},
	})

	trajectoryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trajectory",
		Fields: graphql.Fields{
			"id":      &graphql.Field{Type: graphql.String},
			"start":   &graphql.Field{Type: geoPointType},
			"params":  &graphql.Field{Type: paramsType},
			"history": &graphql.Field{Type: graphql.NewList(geoPointType)},
			"status": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					switch t := p.Source.(type) {
					case *domain.Trajectory:
						return string(t.Status), nil
					case domain.Trajectory:
						return string(t.Status), nil
					}
					return nil, nil
				},
			},
			"summary": &graphql.Field{Type: summaryType},
			"created_at": &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					switch t := p.Source.(type) {
					case *domain.Trajectory:
						return t.CreatedAt, nil
					case domain.Trajectory:
						return t.CreatedAt, nil
					}
					return nil, nil
				},
			},
		},
	})

	elevationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Elevation",
		Fields: graphql.Fields{
			"point":  &graphql.Field{Type: geoPointType},
			"pixel":  &graphql.Field{Type: pixelType},
			"tile":   &graphql.Field{Type: tileType},
			"meters": &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"trajectory": &graphql.Field{
				Type:        trajectoryType,
				Description: "Get a stored trajectory by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Descents.Get(p.Context, id)
				},
			},
			"trajectories": &graphql.Field{
				Type:        graphql.NewList(trajectoryType),
				Description: "List stored trajectories, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					ts, _, err := deps.Descents.List(p.Context, offset, limit)
					return ts, err
				},
			},
			"elevation": &graphql.Field{
				Type:        elevationType,
				Description: "Elevation of the pixel containing a point",
				Args: graphql.FieldConfigArgument{
					"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt := domain.GeoPoint{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					zoom := deps.Descents.Defaults().Zoom
					if z, ok := p.Args["zoom"].(int); ok {
						zoom = z
					}
					return deps.Elevation.At(p.Context, pt, zoom)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
