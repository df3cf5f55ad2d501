package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/geofence-simulator/core"
	"github.com/signalsfoundry/geofence-simulator/internal/config"
	"github.com/signalsfoundry/geofence-simulator/internal/journal"
	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	"github.com/signalsfoundry/geofence-simulator/internal/nbi"
	"github.com/signalsfoundry/geofence-simulator/internal/observability"
	sim "github.com/signalsfoundry/geofence-simulator/internal/sim/state"
	"github.com/signalsfoundry/geofence-simulator/kb"
	"github.com/signalsfoundry/geofence-simulator/model"
	"github.com/signalsfoundry/geofence-simulator/timectrl"
)

// runtime is one fully wired simulator with its collectors and journal.
type runtime struct {
	clock     *timectrl.Clock
	sim       *sim.Simulator
	hub       *nbi.Hub
	simStats  *observability.SimCollector
	clockStat *observability.ClockCollector
	httpStats *observability.HTTPCollector
	journal   *journal.Journal
}

// newRuntime builds the simulator described by cfg. Without a hub the
// simulator runs headless and broadcasts nothing.
func newRuntime(ctx context.Context, cfg config.Config, log logging.Logger, reg prometheus.Registerer, withHub bool) (*runtime, error) {
	roster, err := loadRoster(ctx, cfg.RosterPath, log)
	if err != nil {
		return nil, err
	}
	devices, err := kb.NewDeviceStore(roster)
	if err != nil {
		return nil, fmt.Errorf("build roster: %w", err)
	}

	rt := &runtime{clock: timectrl.NewClock()}
	if rt.simStats, err = observability.NewSimCollector(reg); err != nil {
		return nil, fmt.Errorf("sim metrics: %w", err)
	}
	if rt.clockStat, err = observability.NewClockCollector(reg); err != nil {
		return nil, fmt.Errorf("clock metrics: %w", err)
	}
	if rt.httpStats, err = observability.NewHTTPCollector(reg); err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := []sim.SimulatorOption{
		sim.WithMotionModel(core.NewJitterMotionModel(core.NewRandomSource(seed))),
		sim.WithNotificationEngine(&core.NotificationEngine{ProximityKm: cfg.ProximityKm}),
		sim.WithMetricsRecorder(rt.simStats),
		sim.WithClockMetrics(rt.clockStat),
		sim.WithStrictCoordinates(cfg.StrictCoordinates),
		sim.WithTracer(observability.Tracer("github.com/signalsfoundry/geofence-simulator/internal/sim/state")),
	}

	if cfg.JournalPath != "" {
		if rt.journal, err = journal.Open(cfg.JournalPath); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		opts = append(opts, sim.WithJournal(rt.journal))
	}
	if withHub {
		rt.hub = nbi.NewHub(log, nbi.WithObserverMetrics(rt.simStats))
		opts = append(opts, sim.WithBroadcaster(rt.hub))
	}

	rt.sim = sim.NewSimulator(devices, kb.NewGeofenceRegistry(), rt.clock, log, opts...)
	log.Info(ctx, "simulator ready",
		logging.Int("devices", devices.Len()),
		logging.Int64("seed", seed),
		logging.Float("proximity_km", cfg.ProximityKm),
		logging.Bool("strict_coordinates", cfg.StrictCoordinates),
		logging.Bool("journal", rt.journal != nil),
	)
	return rt, nil
}

// Close stops the clock, disconnects observers and closes the journal.
func (rt *runtime) Close() error {
	rt.clock.Stop()
	if rt.hub != nil {
		rt.hub.Close()
	}
	if rt.journal != nil {
		return rt.journal.Close()
	}
	return nil
}

func loadRoster(ctx context.Context, path string, log logging.Logger) ([]model.Device, error) {
	if path == "" {
		return kb.DefaultRoster(), nil
	}
	roster, err := kb.LoadRosterFile(path)
	if err != nil {
		return nil, fmt.Errorf("load roster %s: %w", path, err)
	}
	log.Info(ctx, "loaded roster", logging.String("path", path), logging.Int("devices", len(roster)))
	return roster, nil
}
