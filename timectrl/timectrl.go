package timectrl

import (
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// ErrInvalidPeriod is returned when a schedule is started with a
// non-positive period.
var ErrInvalidPeriod = errors.New("tick period must be positive")

// SimClock is the read side of the clock used by components that only need
// the time of the last tick.
type SimClock interface {
	Now() time.Time
}

// State is the clock's lifecycle state.
type State int

const (
	// Idle means no schedule is active.
	Idle State = iota
	// Running means exactly one schedule is firing ticks.
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Tick is one firing of a schedule.
type Tick struct {
	// Seq increases by one per tick across all schedules.
	Seq uint64
	// Generation identifies the schedule that fired the tick.
	Generation uint64
	Time       time.Time
	Period     time.Duration
	Profile    model.PerturbationProfile
}

// Clock fires ticks on a single replaceable schedule.
//
// Start cancels any running schedule before installing the new one, so at
// most one schedule is ever active. Each schedule carries a generation
// number; a schedule goroutine re-checks its generation under the clock
// lock before every fire and exits once superseded. Listeners run on the
// schedule goroutine without the clock lock held, so a tick that was
// already dispatched can still be in flight when Stop returns. Callers that
// need a hard guarantee re-check IsCurrent(tick.Generation) under their own
// lock, which is what the simulator does.
type Clock struct {
	mu sync.Mutex

	state      State
	generation uint64
	seq        uint64
	period     time.Duration
	profile    model.PerturbationProfile
	stop       chan struct{}
	lastTick   time.Time

	listeners []func(Tick)

	// newTicker is swapped in tests.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewClock returns an idle clock.
func NewClock() *Clock {
	return &Clock{newTicker: realTicker}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// AddListener registers a callback invoked on every tick of every schedule.
func (c *Clock) AddListener(fn func(Tick)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start cancels the active schedule, if any, and begins firing a tick every
// period with the given profile. It returns the new schedule's generation.
func (c *Clock) Start(period time.Duration, profile model.PerturbationProfile) (uint64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.generation++
	c.state = Running
	c.period = period
	c.profile = profile
	c.stop = make(chan struct{})

	go c.run(c.generation, period, profile, c.stop)
	return c.generation, nil
}

// Stop cancels the active schedule. It reports whether a schedule was
// running; stopping an idle clock is a no-op. Stop never waits for the
// schedule goroutine.
func (c *Clock) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Clock) stopLocked() bool {
	if c.state != Running {
		return false
	}
	close(c.stop)
	c.stop = nil
	c.generation++
	c.state = Idle
	c.period = 0
	c.profile = model.PerturbationProfile{}
	return true
}

// State returns the current lifecycle state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running returns the active schedule's period and profile.
func (c *Clock) Running() (time.Duration, model.PerturbationProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period, c.profile, c.state == Running
}

// Generation returns the current generation. It changes on every Start and
// on every Stop of a running schedule.
func (c *Clock) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// IsCurrent reports whether generation belongs to the active schedule.
func (c *Clock) IsCurrent(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Running && c.generation == generation
}

// Now returns the time of the most recent tick, or the zero time before the
// first one. Implements SimClock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTick
}

func (c *Clock) run(generation uint64, period time.Duration, profile model.PerturbationProfile, stop <-chan struct{}) {
	ticks, stopTicker := c.newTicker(period)
	defer stopTicker()

	for {
		select {
		case <-stop:
			return
		case now := <-ticks:
			c.mu.Lock()
			if c.state != Running || c.generation != generation {
				c.mu.Unlock()
				return
			}
			c.seq++
			c.lastTick = now
			tick := Tick{
				Seq:        c.seq,
				Generation: generation,
				Time:       now,
				Period:     period,
				Profile:    profile,
			}
			listeners := append([]func(Tick){}, c.listeners...)
			c.mu.Unlock()

			for _, fn := range listeners {
				fn(tick)
			}
		}
	}
}
