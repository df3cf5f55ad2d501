package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	"github.com/signalsfoundry/geofence-simulator/model"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Ticks   int
	Profile string
	Areas   []string
	Sim     simulationFlags
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run ticks headless and print each payload as a JSON line",
		Long: `Run the simulator without listeners. Each tick perturbs the fleet,
evaluates notifications and prints one JSON object per line.

Examples:
  geofence-sim simulate --ticks 5 --seed 1
  geofence-sim simulate --area "Zone A,40.73061,-73.935242" --profile post-reset
  geofence-sim simulate --ticks 100 --journal ./sim.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Ticks, "ticks", "n", 10, "number of ticks to run")
	cmd.Flags().StringVar(&opts.Profile, "profile", model.NormalProfile.Name, "perturbation profile (normal|post-reset)")
	cmd.Flags().StringArrayVar(&opts.Areas, "area", nil, `square geofence to create first, as "name,lat,long" (repeatable)`)
	opts.Sim.register(cmd)

	return cmd
}

func runSimulate(ctx context.Context, cmd *cobra.Command, opts *SimulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Ticks < 0 {
		return wrapExitError(ExitConfigFailure, "invalid flags", fmt.Errorf("--ticks must not be negative, got %d", opts.Ticks))
	}
	profile, err := profileByName(opts.Profile)
	if err != nil {
		return wrapExitError(ExitConfigFailure, "invalid flags", err)
	}
	cfg := opts.cfg
	if err := opts.Sim.apply(cmd, &cfg); err != nil {
		return wrapExitError(ExitConfigFailure, "invalid flags", err)
	}

	log := logging.New(cfg.Log)
	rt, err := newRuntime(ctx, cfg, log, prometheus.NewRegistry(), false)
	if err != nil {
		return wrapExitError(ExitCommandError, "build simulator", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn(context.Background(), "close runtime", logging.Err(err))
		}
	}()

	for _, raw := range opts.Areas {
		name, lat, long, err := parseArea(raw)
		if err != nil {
			return wrapExitError(ExitConfigFailure, "invalid area", err)
		}
		if _, err := rt.sim.CreatePolygon(ctx, name, lat, long); err != nil {
			return wrapExitError(ExitConfigFailure, "invalid area", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for i := 0; i < opts.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(rt.sim.Step(ctx, profile)); err != nil {
			return wrapExitError(ExitFailure, "write tick", err)
		}
	}
	return nil
}

func profileByName(name string) (model.PerturbationProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case model.NormalProfile.Name:
		return model.NormalProfile, nil
	case model.PostResetProfile.Name:
		return model.PostResetProfile, nil
	default:
		return model.PerturbationProfile{}, fmt.Errorf("unknown profile %q", name)
	}
}

// parseArea splits "name,lat,long". The name may itself contain commas.
func parseArea(raw string) (name, lat, long string, err error) {
	i := strings.LastIndex(raw, ",")
	if i < 0 {
		return "", "", "", fmt.Errorf("area %q: want name,lat,long", raw)
	}
	rest, long := raw[:i], raw[i+1:]
	j := strings.LastIndex(rest, ",")
	if j < 0 {
		return "", "", "", fmt.Errorf("area %q: want name,lat,long", raw)
	}
	return strings.TrimSpace(rest[:j]), strings.TrimSpace(rest[j+1:]), strings.TrimSpace(long), nil
}
