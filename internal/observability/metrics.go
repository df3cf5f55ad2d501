package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation loop and the
// observer-facing commands.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks         prometheus.Counter
	TickDurations prometheus.Histogram
	Devices       prometheus.Gauge
	Polygons      prometheus.Gauge
	Notifications *prometheus.GaugeVec
	Observers     prometheus.Gauge
	Commands      *prometheus.CounterVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of simulation ticks evaluated.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent perturbing devices and evaluating notifications per tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_devices",
		Help: "Number of devices in the roster.",
	}), "sim_devices")
	if err != nil {
		return nil, err
	}
	polygons, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_polygons",
		Help: "Number of active geofence polygons.",
	}), "sim_polygons")
	if err != nil {
		return nil, err
	}

	notifications := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_notifications",
		Help: "Notifications produced by the most recent tick, labeled by kind.",
	}, []string{"kind"})
	notifications, err = registerGaugeVec(reg, notifications, "sim_notifications")
	if err != nil {
		return nil, err
	}

	observers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_observers",
		Help: "Number of connected observers.",
	}), "sim_observers")
	if err != nil {
		return nil, err
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_commands_total",
		Help: "Simulation commands handled, labeled by command.",
	}, []string{"command"})
	commands, err = registerCounterVec(reg, commands, "sim_commands_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:      gatherer,
		Ticks:         ticks,
		TickDurations: durations,
		Devices:       devices,
		Polygons:      polygons,
		Notifications: notifications,
		Observers:     observers,
		Commands:      commands,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick satisfies the simulator's metrics recorder: it records one
// tick's duration and the resulting counts.
func (c *SimCollector) ObserveTick(d time.Duration, devices, polygons, proximity, containment int) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.TickDurations != nil {
		c.TickDurations.Observe(d.Seconds())
	}
	if c.Notifications != nil {
		c.Notifications.WithLabelValues("proximity").Set(float64(proximity))
		c.Notifications.WithLabelValues("entered").Set(float64(containment))
	}
	c.SetCounts(devices, polygons)
}

// SetCounts updates the roster and polygon gauges.
func (c *SimCollector) SetCounts(devices, polygons int) {
	if c == nil {
		return
	}
	if c.Devices != nil {
		c.Devices.Set(float64(devices))
	}
	if c.Polygons != nil {
		c.Polygons.Set(float64(polygons))
	}
}

// IncCommand counts one handled command.
func (c *SimCollector) IncCommand(command string) {
	if c == nil || c.Commands == nil {
		return
	}
	c.Commands.WithLabelValues(command).Inc()
}

// SetObservers updates the connected observer gauge.
func (c *SimCollector) SetObservers(n int) {
	if c == nil || c.Observers == nil {
		return
	}
	c.Observers.Set(float64(n))
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
