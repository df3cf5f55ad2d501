package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ClockCollector exposes metrics for the tick schedule.
type ClockCollector struct {
	gatherer prometheus.Gatherer

	SchedulesStarted prometheus.Counter
	StaleTicks       prometheus.Counter
	Running          prometheus.Gauge
}

// NewClockCollector registers clock metrics against the provided registerer.
func NewClockCollector(reg prometheus.Registerer) (*ClockCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	started := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_clock_schedules_started_total",
		Help: "Number of tick schedules started, including restarts after reset.",
	})
	started, err := registerCounter(reg, started, "sim_clock_schedules_started_total")
	if err != nil {
		return nil, err
	}

	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_clock_stale_ticks_total",
		Help: "Ticks discarded because their schedule had been stopped or replaced.",
	})
	stale, err = registerCounter(reg, stale, "sim_clock_stale_ticks_total")
	if err != nil {
		return nil, err
	}

	running := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_clock_running",
		Help: "1 while a tick schedule is active, 0 when idle.",
	})
	running, err = registerGauge(reg, running, "sim_clock_running")
	if err != nil {
		return nil, err
	}

	return &ClockCollector{
		gatherer:         gatherer,
		SchedulesStarted: started,
		StaleTicks:       stale,
		Running:          running,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ClockCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncSchedulesStarted counts a schedule start and marks the clock running.
func (c *ClockCollector) IncSchedulesStarted() {
	if c == nil || c.SchedulesStarted == nil {
		return
	}
	c.SchedulesStarted.Inc()
	c.SetRunning(true)
}

// IncStaleTicks counts a discarded tick.
func (c *ClockCollector) IncStaleTicks() {
	if c == nil || c.StaleTicks == nil {
		return
	}
	c.StaleTicks.Inc()
}

// SetRunning updates the running gauge.
func (c *ClockCollector) SetRunning(running bool) {
	if c == nil || c.Running == nil {
		return
	}
	if running {
		c.Running.Set(1)
		return
	}
	c.Running.Set(0)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
