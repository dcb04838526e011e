package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/urbansense/urbansense/internal/config"
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
)

func newValidateCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", f.configPath)
			fmt.Fprintf(out, "  vision     : %s %s (%d fallbacks)\n", cfg.Providers.Vision.Name, cfg.Providers.Vision.Model, len(cfg.Providers.VisionFallback))
			fmt.Fprintf(out, "  directions : %s\n", cfg.Providers.Directions.Name)
			fmt.Fprintf(out, "  transit    : %s\n", cfg.Providers.Transit.Name)
			dialer := cfg.Providers.Dialer.Name
			if dialer == "" {
				dialer = "device"
			}
			fmt.Fprintf(out, "  dialer     : %s\n", dialer)
			fmt.Fprintf(out, "  settings   : %s\n", cfg.Settings.Store)

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			avail := reg.Available()
			for _, kind := range []string{"vision", "directions", "transit", "dialer"} {
				fmt.Fprintf(out, "  built-in %s: %s\n", kind, strings.Join(avail[kind], ", "))
			}
			return nil
		},
	}
}

// newDirectionsCommand queries the configured directions oracle once, which
// is handy when checking a self-hosted routing backend.
func newDirectionsCommand(f *rootFlags) *cobra.Command {
	var (
		lat, lon float64
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "directions <destination>",
		Short: "Print a walking route from a position to a destination",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			p, err := reg.CreateDirections(cfg.Providers.Directions)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := geo.Coordinates{Latitude: lat, Longitude: lon}
			route, err := p.GetDirections(ctx, start, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printRoute(cmd, route)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 28.6139, "start latitude")
	cmd.Flags().Float64Var(&lon, "lon", 77.2090, "start longitude")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "request timeout")
	return cmd
}

func printRoute(cmd *cobra.Command, route directions.RouteDetails) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s, %d m\n", route.DestinationName, route.TotalDistance)
	for i, s := range route.Steps {
		fmt.Fprintf(out, "%2d. %s (%.5f, %.5f)\n", i+1, s.Instruction, s.Location.Latitude, s.Location.Longitude)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "urbansense %s\n", version)
		},
	}
}
