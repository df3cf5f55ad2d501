package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/geofence-simulator/internal/config"
	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	"github.com/signalsfoundry/geofence-simulator/internal/nbi"
	"github.com/signalsfoundry/geofence-simulator/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	PolygonAddr string
	MetricsAddr string
	Autostart   bool
	Sim         simulationFlags
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newServeCommand(rootOpts)
	return cmd
}

func newServeCommand(rootOpts *RootOptions) (*cobra.Command, *ServeOptions) {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulator to websocket and HTTP observers",
		Long: `Serve the simulator on the main HTTP listener (websocket at /ws,
polygon creation at /polygon, commands and read endpoints), plus the
optional polygon-only and metrics listeners.

Examples:
  geofence-sim serve
  geofence-sim serve --addr :8080 --polygon-addr - --autostart
  geofence-sim serve --journal ./sim.db --period 1s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":3000", "main HTTP listen address")
	cmd.Flags().StringVar(&opts.PolygonAddr, "polygon-addr", ":3001", `polygon-only listen address ("-" disables)`)
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", ":9090", `metrics listen address ("-" mounts /metrics on the main listener)`)
	opts.Sim.register(cmd)
	cmd.Flags().BoolVar(&opts.Autostart, "autostart", false, "start ticking without waiting for a start command")

	return cmd, opts
}

// simulationFlags are the simulator settings shared by serve and simulate.
type simulationFlags struct {
	Period      time.Duration
	Roster      string
	Strict      bool
	ProximityKm float64
	Seed        int64
	Journal     string
}

func (f *simulationFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.Period, "period", 5*time.Second, "tick period")
	cmd.Flags().StringVar(&f.Roster, "roster", "", "YAML or JSON roster file (default built-in fleet)")
	cmd.Flags().BoolVar(&f.Strict, "strict", false, "reject polygon anchors that are not numbers")
	cmd.Flags().Float64Var(&f.ProximityKm, "proximity-km", 10, "proximity notification threshold in km")
	cmd.Flags().Int64Var(&f.Seed, "seed", 0, "motion random seed (0 seeds from the clock)")
	cmd.Flags().StringVar(&f.Journal, "journal", "", "SQLite journal path (empty disables)")
}

// apply copies explicitly set flags onto cfg.
func (f *simulationFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("period") {
		if f.Period <= 0 {
			return fmt.Errorf("--period must be positive, got %s", f.Period)
		}
		cfg.TickPeriod = f.Period
	}
	if flags.Changed("roster") {
		cfg.RosterPath = f.Roster
	}
	if flags.Changed("strict") {
		cfg.StrictCoordinates = f.Strict
	}
	if flags.Changed("proximity-km") {
		if f.ProximityKm < 0 {
			return fmt.Errorf("--proximity-km must not be negative, got %v", f.ProximityKm)
		}
		cfg.ProximityKm = f.ProximityKm
	}
	if flags.Changed("seed") {
		cfg.Seed = f.Seed
	}
	if flags.Changed("journal") {
		cfg.JournalPath = f.Journal
	}
	return nil
}

// resolve layers explicitly set flags over the loaded configuration.
func (o *ServeOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := o.cfg
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.HTTPAddr = o.Addr
	}
	if flags.Changed("polygon-addr") {
		cfg.PolygonAddr = listenerAddr(o.PolygonAddr)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = listenerAddr(o.MetricsAddr)
	}
	if flags.Changed("autostart") {
		cfg.Autostart = o.Autostart
	}
	if err := o.Sim.apply(cmd, &cfg); err != nil {
		return config.Config{}, wrapExitError(ExitConfigFailure, "invalid flags", err)
	}
	return cfg, nil
}

func listenerAddr(addr string) string {
	if addr == "-" {
		return ""
	}
	return addr
}

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg.Log)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return wrapExitError(ExitConfigFailure, "init tracing", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	rt, err := newRuntime(ctx, cfg, log, prometheus.DefaultRegisterer, true)
	if err != nil {
		return wrapExitError(ExitCommandError, "build simulator", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn(context.Background(), "close runtime", logging.Err(err))
		}
	}()

	serverOpts := []nbi.ServerOption{
		nbi.WithDefaultPeriod(cfg.TickPeriod),
		nbi.WithHTTPMetrics(rt.httpStats),
	}
	if cfg.MetricsAddr == "" {
		serverOpts = append(serverOpts, nbi.WithMetricsHandler(rt.simStats.Handler()))
	}
	if rt.journal != nil {
		serverOpts = append(serverOpts, nbi.WithJournalReader(rt.journal))
	}
	server := nbi.NewServer(rt.sim, rt.hub, log, serverOpts...)

	listeners := []struct {
		name    string
		addr    string
		handler http.Handler
	}{
		{name: "http", addr: cfg.HTTPAddr, handler: server.Router()},
		{name: "polygon", addr: cfg.PolygonAddr, handler: server.PolygonRouter()},
		{name: "metrics", addr: cfg.MetricsAddr, handler: metricsMux(rt.simStats.Handler())},
	}

	errCh := make(chan error, len(listeners))
	var servers []*http.Server
	for _, l := range listeners {
		if l.addr == "" {
			continue
		}
		lis, err := net.Listen("tcp", l.addr)
		if err != nil {
			shutdownServers(servers, log)
			return wrapExitError(ExitCommandError, "listen "+l.name, err)
		}
		srv := &http.Server{
			Handler:           l.handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		}
		servers = append(servers, srv)

		log.Info(ctx, "listening", logging.String("listener", l.name), logging.String("addr", lis.Addr().String()))
		go func(name string) {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- wrapExitError(ExitFailure, name+" server exited", err)
			}
		}(l.name)
	}

	if cfg.Autostart {
		if err := rt.sim.Start(ctx, cfg.TickPeriod); err != nil {
			shutdownServers(servers, log)
			return wrapExitError(ExitCommandError, "autostart", err)
		}
	}

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	case err = <-errCh:
		log.Error(context.Background(), "listener failed", logging.Err(err))
	}

	rt.clock.Stop()
	rt.hub.Close()
	shutdownServers(servers, log)
	return err
}

func metricsMux(h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}

func shutdownServers(servers []*http.Server, log logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn(ctx, "server shutdown", logging.Err(err))
		}
	}
}
