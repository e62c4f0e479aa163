package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
)

var elevationCmd = &cobra.Command{
	Use:   "elevation",
	Short: "Print the elevation and gradient at a location",
	Long: `Print the elevation of the pixel containing a coordinate together with the
terrain gradient there.

Examples:
  descend elevation --lat 35.3606 --lon 138.7274
  descend elevation --lat 35.3606 --lon 138.7274 --zoom 15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, source, err := setup(cmd)
		if err != nil {
			return err
		}

		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		p := domain.GeoPoint{Lat: lat, Lon: lon}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		svc := usecases.NewElevationService(source, nil)
		e, err := svc.At(ctx, p, cfg.Descent.Zoom)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Location: %.6f, %.6f\n", e.Point.Lat, e.Point.Lon)
		fmt.Fprintf(out, "Elevation: %.2f meters\n", e.Meters)
		fmt.Fprintf(out, "Tile: z=%d x=%d y=%d offset=(%d, %d)\n", e.Tile.Zoom, e.Tile.X, e.Tile.Y, e.Offset.X, e.Offset.Y)

		g, err := svc.GradientAt(ctx, p, cfg.Descent.Zoom)
		if err != nil {
			fmt.Fprintf(out, "Gradient: unavailable (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "Gradient: (%.2f, %.2f) |g|=%.2f\n", g.Gradient.DX, g.Gradient.DY, g.Norm)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(elevationCmd)

	elevationCmd.Flags().Float64("lat", 0, "Latitude (required)")
	elevationCmd.Flags().Float64("lon", 0, "Longitude (required)")
	elevationCmd.MarkFlagRequired("lat")
	elevationCmd.MarkFlagRequired("lon")
}
