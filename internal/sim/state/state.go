// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/geofence-simulator/core"
	"github.com/signalsfoundry/geofence-simulator/internal/journal"
	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	"github.com/signalsfoundry/geofence-simulator/kb"
	"github.com/signalsfoundry/geofence-simulator/model"
	"github.com/signalsfoundry/geofence-simulator/timectrl"
)

// Re-export sentinel errors so callers can depend on state.* instead of the
// lower packages directly.
var (
	// ErrInvalidPeriod indicates a start or reset with a non-positive period.
	ErrInvalidPeriod = timectrl.ErrInvalidPeriod
	// ErrInvalidCoordinate indicates polygon anchor text that failed strict
	// parsing.
	ErrInvalidCoordinate = core.ErrInvalidCoordinate
	// ErrPolygonNameEmpty indicates a polygon without a name under strict
	// coordinate handling.
	ErrPolygonNameEmpty = errors.New("polygon name is empty")
)

// DefaultPeriod is the tick period used by start and reset commands that do
// not name one.
const DefaultPeriod = 5 * time.Second

// TickPayload is the broadcast produced by one evaluation: current device
// positions, the notifications they raise, and the active polygons.
type TickPayload struct {
	Seq           uint64               `json:"seq"`
	Time          time.Time            `json:"time"`
	Devices       []model.Device       `json:"devices"`
	Notifications []model.Notification `json:"notifications"`
	Polygons      []model.Polygon      `json:"polygons"`
}

// Status is a point-in-time summary of the simulation.
type Status struct {
	State      string        `json:"state"`
	Period     time.Duration `json:"period"`
	Profile    string        `json:"profile,omitempty"`
	Generation uint64        `json:"generation"`
	Seq        uint64        `json:"seq"`
	Devices    int           `json:"devices"`
	Polygons   int           `json:"polygons"`
	LastTick   time.Time     `json:"last_tick"`
	Strict     bool          `json:"strict_coordinates"`
}

// Broadcaster delivers tick payloads to observers. Broadcast is called with
// the simulator lock held and must not block.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload TickPayload)
}

// MetricsRecorder receives per-tick and per-command measurements.
type MetricsRecorder interface {
	ObserveTick(d time.Duration, devices, polygons, proximity, containment int)
	SetCounts(devices, polygons int)
	IncCommand(command string)
}

// ClockMetricsRecorder receives schedule lifecycle events.
type ClockMetricsRecorder interface {
	IncSchedulesStarted()
	IncStaleTicks()
	SetRunning(running bool)
}

// Journal persists ticks and commands for offline inspection.
type Journal interface {
	RecordTick(ctx context.Context, rec journal.TickRecord) error
	RecordCommand(ctx context.Context, command, detail string) error
}

// Simulator owns the single shared simulation: the device roster, the
// geofence registry and the tick clock.
//
// mu serializes every mutation and the tick body. Take mu before calling
// into the clock; the clock never calls back into the simulator while
// holding its own lock.
type Simulator struct {
	mu sync.Mutex

	devices   *kb.DeviceStore
	geofences *kb.GeofenceRegistry
	clock     *timectrl.Clock

	motion core.MotionModel
	engine *core.NotificationEngine
	strict bool
	seq    uint64

	broadcaster  Broadcaster
	metrics      MetricsRecorder
	clockMetrics ClockMetricsRecorder
	journal      Journal
	tracer       trace.Tracer

	log logging.Logger
}

// SimulatorOption customises Simulator construction.
type SimulatorOption func(*Simulator)

// WithMotionModel replaces the default jitter motion model.
func WithMotionModel(m core.MotionModel) SimulatorOption {
	return func(s *Simulator) {
		if m != nil {
			s.motion = m
		}
	}
}

// WithNotificationEngine replaces the default notification engine.
func WithNotificationEngine(e *core.NotificationEngine) SimulatorOption {
	return func(s *Simulator) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithBroadcaster attaches the observer transport.
func WithBroadcaster(b Broadcaster) SimulatorOption {
	return func(s *Simulator) {
		s.broadcaster = b
	}
}

// WithMetricsRecorder attaches an optional recorder for tick and command
// metrics.
func WithMetricsRecorder(m MetricsRecorder) SimulatorOption {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithClockMetrics attaches an optional recorder for schedule metrics.
func WithClockMetrics(m ClockMetricsRecorder) SimulatorOption {
	return func(s *Simulator) {
		s.clockMetrics = m
	}
}

// WithJournal attaches a tick/command journal.
func WithJournal(j Journal) SimulatorOption {
	return func(s *Simulator) {
		s.journal = j
	}
}

// WithStrictCoordinates makes CreatePolygon reject malformed anchors and
// empty names instead of propagating NaN.
func WithStrictCoordinates(strict bool) SimulatorOption {
	return func(s *Simulator) {
		s.strict = strict
	}
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(t trace.Tracer) SimulatorOption {
	return func(s *Simulator) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewSimulator wires the roster, registry and clock together and registers
// the simulator as the clock's tick listener.
func NewSimulator(devices *kb.DeviceStore, geofences *kb.GeofenceRegistry, clock *timectrl.Clock, log logging.Logger, opts ...SimulatorOption) *Simulator {
	if log == nil {
		log = logging.Noop()
	}
	if geofences == nil {
		geofences = kb.NewGeofenceRegistry()
	}
	if clock == nil {
		clock = timectrl.NewClock()
	}
	s := &Simulator{
		devices:   devices,
		geofences: geofences,
		clock:     clock,
		motion:    core.NewJitterMotionModel(nil),
		engine:    core.NewNotificationEngine(),
		tracer:    otel.Tracer("github.com/signalsfoundry/geofence-simulator/internal/sim/state"),
		log:       log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	geofences.Subscribe(s.onRegistryEvent)
	clock.AddListener(func(tick timectrl.Tick) {
		s.Tick(context.Background(), tick)
	})
	if s.metrics != nil {
		s.metrics.SetCounts(devices.Len(), geofences.Len())
	}
	return s
}

func (s *Simulator) onRegistryEvent(e kb.Event) {
	if s.metrics != nil {
		s.metrics.SetCounts(s.devices.Len(), s.geofences.Len())
	}
	fields := []logging.Field{logging.String("event", e.Type.String())}
	if e.Polygon != nil {
		fields = append(fields, logging.String("polygon", e.Polygon.Name), logging.String("polygon_id", e.Polygon.ID))
	}
	s.log.Debug(context.Background(), "geofence registry changed", fields...)
}

// OnObserverConnect returns the polygons a newly connected observer should
// be shown.
func (s *Simulator) OnObserverConnect() []model.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geofences.List()
}

// Start begins ticking every period with the normal profile, replacing any
// running schedule.
func (s *Simulator) Start(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}

	s.mu.Lock()
	gen, err := s.clock.Start(period, model.NormalProfile)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	s.clockStarted()
	s.command(ctx, "start", fmt.Sprintf("period=%s generation=%d", period, gen),
		logging.Duration("period", period), logging.Uint64("generation", gen))
	return nil
}

// Reset stops the running schedule, restores the initial roster and starts
// a fresh schedule with the post-reset profile. A tick from the old
// schedule that is still in flight is discarded.
func (s *Simulator) Reset(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}

	s.mu.Lock()
	s.clock.Stop()
	s.devices.ResetToInitial()
	gen, err := s.clock.Start(period, model.PostResetProfile)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	s.clockStarted()
	s.command(ctx, "reset", fmt.Sprintf("period=%s generation=%d", period, gen),
		logging.Duration("period", period), logging.Uint64("generation", gen))
	return nil
}

// Stop cancels the running schedule. It reports whether one was running;
// stopping an idle simulation is a no-op.
func (s *Simulator) Stop(ctx context.Context) bool {
	s.mu.Lock()
	stopped := s.clock.Stop()
	s.mu.Unlock()

	if s.clockMetrics != nil {
		s.clockMetrics.SetRunning(false)
	}
	s.command(ctx, "stop", fmt.Sprintf("was_running=%t", stopped), logging.Bool("was_running", stopped))
	return stopped
}

// ClearAreas removes every polygon.
func (s *Simulator) ClearAreas(ctx context.Context) {
	s.mu.Lock()
	removed := s.geofences.Len()
	s.geofences.Clear()
	s.mu.Unlock()

	s.command(ctx, "remove-areas", fmt.Sprintf("removed=%d", removed), logging.Int("removed", removed))
}

// CreatePolygon builds the square geofence anchored at the parsed
// coordinates and registers it. Malformed coordinates become NaN unless
// strict coordinate handling is enabled, in which case they are rejected.
func (s *Simulator) CreatePolygon(ctx context.Context, name, latText, longText string) (model.Polygon, error) {
	if s.strict && strings.TrimSpace(name) == "" {
		return model.Polygon{}, ErrPolygonNameEmpty
	}
	anchor, err := core.ParseAnchor(latText, longText, s.strict)
	if err != nil {
		return model.Polygon{}, err
	}

	polygon := core.NewSquarePolygon(name, anchor)

	s.mu.Lock()
	s.geofences.Add(polygon)
	s.mu.Unlock()

	s.command(ctx, "polygon", fmt.Sprintf("name=%q lat=%q long=%q", name, latText, longText),
		logging.String("name", name),
		logging.String("polygon_id", polygon.ID),
		logging.Float("lat", anchor.Lat),
		logging.Float("long", anchor.Long),
	)
	return polygon, nil
}

// Tick runs one clock tick: perturb every device with the tick's profile,
// evaluate notifications and broadcast the payload. It returns false, and
// changes nothing, when the tick belongs to a schedule that has since been
// stopped or replaced.
func (s *Simulator) Tick(ctx context.Context, tick timectrl.Tick) (TickPayload, bool) {
	ctx, span := s.tracer.Start(ctx, "sim.tick", trace.WithAttributes(
		attribute.Int64("sim.tick.generation", int64(tick.Generation)),
		attribute.String("sim.tick.profile", tick.Profile.Name),
	))
	defer span.End()

	s.mu.Lock()
	if !s.clock.IsCurrent(tick.Generation) {
		s.mu.Unlock()
		span.SetAttributes(attribute.Bool("sim.tick.stale", true))
		if s.clockMetrics != nil {
			s.clockMetrics.IncStaleTicks()
		}
		s.log.Debug(ctx, "discarding stale tick",
			logging.Uint64("generation", tick.Generation),
			logging.Uint64("clock_seq", tick.Seq),
		)
		return TickPayload{}, false
	}
	payload, elapsed := s.stepLocked(ctx, tick.Profile, tick.Time)
	s.mu.Unlock()

	s.afterStep(ctx, span, payload, tick.Generation, elapsed)
	return payload, true
}

// Step perturbs and evaluates once outside any schedule. It is used for
// headless runs and behaves like a tick of the given profile.
func (s *Simulator) Step(ctx context.Context, profile model.PerturbationProfile) TickPayload {
	ctx, span := s.tracer.Start(ctx, "sim.step", trace.WithAttributes(
		attribute.String("sim.tick.profile", profile.Name),
	))
	defer span.End()

	s.mu.Lock()
	payload, elapsed := s.stepLocked(ctx, profile, time.Now())
	s.mu.Unlock()

	s.afterStep(ctx, span, payload, 0, elapsed)
	return payload
}

func (s *Simulator) stepLocked(ctx context.Context, profile model.PerturbationProfile, at time.Time) (TickPayload, time.Duration) {
	start := time.Now()
	s.devices.Perturb(s.motion, profile)
	s.seq++
	payload := s.payloadLocked(at)
	elapsed := time.Since(start)

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, payload)
	}
	return payload, elapsed
}

func (s *Simulator) afterStep(ctx context.Context, span trace.Span, payload TickPayload, generation uint64, elapsed time.Duration) {
	proximity, containment := core.CountByKind(payload.Notifications)
	span.SetAttributes(
		attribute.Int64("sim.tick.seq", int64(payload.Seq)),
		attribute.Int("sim.devices", len(payload.Devices)),
		attribute.Int("sim.polygons", len(payload.Polygons)),
		attribute.Int("sim.notifications.proximity", proximity),
		attribute.Int("sim.notifications.entered", containment),
	)
	if s.metrics != nil {
		s.metrics.ObserveTick(elapsed, len(payload.Devices), len(payload.Polygons), proximity, containment)
	}
	s.log.Debug(ctx, "tick evaluated",
		logging.Uint64("seq", payload.Seq),
		logging.Uint64("generation", generation),
		logging.Int("devices", len(payload.Devices)),
		logging.Int("polygons", len(payload.Polygons)),
		logging.Int("proximity", proximity),
		logging.Int("entered", containment),
		logging.Duration("elapsed", elapsed),
	)

	if s.journal == nil {
		return
	}
	err := s.journal.RecordTick(ctx, journal.TickRecord{
		Seq:           payload.Seq,
		Generation:    generation,
		At:            payload.Time,
		Devices:       payload.Devices,
		Notifications: payload.Notifications,
		Polygons:      len(payload.Polygons),
	})
	if err != nil {
		s.log.Warn(ctx, "journal tick failed", logging.Uint64("seq", payload.Seq), logging.Err(err))
	}
}

// Evaluate returns the payload for the current state without perturbing
// any device or advancing the sequence.
func (s *Simulator) Evaluate() TickPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloadLocked(s.clock.Now())
}

func (s *Simulator) payloadLocked(at time.Time) TickPayload {
	devices := s.devices.Snapshot()
	polygons := s.geofences.List()
	notifications := s.engine.Evaluate(devices, polygons)
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return TickPayload{
		Seq:           s.seq,
		Time:          at,
		Devices:       devices,
		Notifications: notifications,
		Polygons:      polygons,
	}
}

// Devices returns the current roster positions.
func (s *Simulator) Devices() []model.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.Snapshot()
}

// Polygons returns the active polygons in insertion order.
func (s *Simulator) Polygons() []model.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geofences.List()
}

// Status summarises the clock and the state sizes.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	period, profile, _ := s.clock.Running()
	return Status{
		State:      s.clock.State().String(),
		Period:     period,
		Profile:    profile.Name,
		Generation: s.clock.Generation(),
		Seq:        s.seq,
		Devices:    s.devices.Len(),
		Polygons:   s.geofences.Len(),
		LastTick:   s.clock.Now(),
		Strict:     s.strict,
	}
}

func (s *Simulator) clockStarted() {
	if s.clockMetrics != nil {
		s.clockMetrics.IncSchedulesStarted()
	}
}

func (s *Simulator) command(ctx context.Context, name, detail string, fields ...logging.Field) {
	if s.metrics != nil {
		s.metrics.IncCommand(name)
	}
	logging.FromContextOr(ctx, s.log).Info(ctx, "command handled", append([]logging.Field{logging.String("command", name)}, fields...)...)

	if s.journal == nil {
		return
	}
	if err := s.journal.RecordCommand(ctx, name, detail); err != nil {
		s.log.Warn(ctx, "journal command failed", logging.String("command", name), logging.Err(err))
	}
}
