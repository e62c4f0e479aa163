package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sw1227/gradient-descent-map/internal/adapters/gsi"
	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/core/usecases"
	"github.com/sw1227/gradient-descent-map/internal/pkg/config"
	"github.com/sw1227/gradient-descent-map/internal/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "descend",
	Short: "Walk downhill over GSI elevation tiles",
	Long: `descend runs gradient descent over the GSI DEM text tiles from a starting
coordinate and prints every step as it happens.

Examples:
  descend --lat 35.3606 --lon 138.7274
  descend --lat 35.3606 --lon 138.7274 --zoom 14 --epsilon 0.5 --steps 200
  descend --lat 35.3606 --lon 138.7274 --json

Defaults come from the service configuration (config.yaml or GDMAP_* variables).`,
	SilenceUsage: true,
	RunE:         runDescent,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("url-template", "", "Tile URL template with {z}, {x} and {y}")
	rootCmd.PersistentFlags().IntP("zoom", "z", 0, "Zoom level 1-15 (default from config)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level")

	rootCmd.Flags().Float64("lat", 0, "Start latitude (required)")
	rootCmd.Flags().Float64("lon", 0, "Start longitude (required)")
	rootCmd.Flags().Float64("epsilon", 0, "Step size factor (default from config)")
	rootCmd.Flags().Int("steps", 0, "Number of steps (default from config)")
	rootCmd.Flags().Float64("threshold", 0, "Stop once the gradient is shorter than this (0 = off)")
	rootCmd.Flags().Bool("json", false, "Print steps and the final trajectory as JSON lines")
	rootCmd.MarkFlagRequired("lat")
	rootCmd.MarkFlagRequired("lon")
}

// setup loads configuration and applies the persistent flags.
func setup(cmd *cobra.Command) (*config.Config, *gsi.Source, error) {
	cfg, err := config.Load("gdmap-descend")
	if err != nil {
		return nil, nil, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	logging.Setup(logging.Options{Level: level, Format: "text"})

	if cmd.Flags().Changed("url-template") {
		cfg.Tiles.URLTemplate, _ = cmd.Flags().GetString("url-template")
	}
	if cmd.Flags().Changed("zoom") {
		cfg.Descent.Zoom, _ = cmd.Flags().GetInt("zoom")
	}

	source := gsi.New(gsi.Config{
		URLTemplate: cfg.Tiles.URLTemplate,
		Sentinel:    cfg.Tiles.Sentinel,
		Retries:     cfg.Tiles.FetchRetries,
		Timeout:     cfg.Tiles.Timeout(),
	})
	return cfg, source, nil
}

func runDescent(cmd *cobra.Command, args []string) error {
	cfg, source, err := setup(cmd)
	if err != nil {
		return err
	}

	svc := usecases.NewDescentService(source, nil, nil, nil, nil, usecases.DescentConfig{
		Zoom:              cfg.Descent.Zoom,
		Epsilon:           cfg.Descent.Epsilon,
		Steps:             cfg.Descent.MaxSteps,
		StepLimit:         cfg.Descent.StepLimit,
		GradientThreshold: cfg.Descent.GradientThreshold,
		CacheCapacity:     cfg.Descent.CacheCapacity,
	})

	params := svc.Defaults()
	if cmd.Flags().Changed("epsilon") {
		params.Epsilon, _ = cmd.Flags().GetFloat64("epsilon")
	}
	if cmd.Flags().Changed("steps") {
		params.Steps, _ = cmd.Flags().GetInt("steps")
	}
	if cmd.Flags().Changed("threshold") {
		params.GradientThreshold, _ = cmd.Flags().GetFloat64("threshold")
	}

	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)

	// Ctrl-C stops between steps; the partial trajectory is still printed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onStep := func(s domain.Step) {
		if asJSON {
			_ = enc.Encode(s)
			return
		}
		marker := ""
		if s.Fallback {
			marker = "  (no gradient, held)"
		}
		fmt.Fprintf(out, "step %4d  lat %.6f lon %.6f  px (%.0f, %.0f)  grad (%.2f, %.2f)%s\n",
			s.Index, s.Position.Lat, s.Position.Lon, s.Pixel.X, s.Pixel.Y, s.Gradient.DX, s.Gradient.DY, marker)
	}

	t, err := svc.Run(ctx, domain.GeoPoint{Lat: lat, Lon: lon}, params, onStep)
	if err != nil {
		return err
	}

	if asJSON {
		return enc.Encode(t)
	}
	s := t.Summary
	fmt.Fprintf(out, "\n%s after %d steps (%d without gradient)\n", t.Status, s.StepsRun, s.Fallbacks)
	if s.ElevationFailed {
		fmt.Fprintln(out, "elevation: unavailable")
	} else {
		fmt.Fprintf(out, "elevation: %.2f m -> %.2f m\n", s.StartElevation, s.FinalElevation)
	}
	fmt.Fprintf(out, "path: %.1f m, displacement: %.1f m, tiles fetched: %d\n",
		s.PathLengthM, s.DisplacementM, s.TilesFetched)
	return nil
}
