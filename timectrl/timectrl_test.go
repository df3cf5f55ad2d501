package timectrl

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// manualTickers hands each schedule its own channel so tests decide when a
// schedule fires.
type manualTickers struct {
	mu      sync.Mutex
	chans   []chan time.Time
	created chan struct{}
}

func newManualTickers() *manualTickers {
	return &manualTickers{created: make(chan struct{}, 16)}
}

func (m *manualTickers) newTicker(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	m.chans = append(m.chans, ch)
	m.mu.Unlock()
	m.created <- struct{}{}
	return ch, func() {}
}

func (m *manualTickers) waitCreated(t *testing.T) {
	t.Helper()
	select {
	case <-m.created:
	case <-time.After(time.Second):
		t.Fatalf("schedule goroutine never created its ticker")
	}
}

func (m *manualTickers) fire(i int, at time.Time) {
	m.mu.Lock()
	ch := m.chans[i]
	m.mu.Unlock()
	select {
	case ch <- at:
	default:
	}
}

func newManualClock() (*Clock, *manualTickers) {
	m := newManualTickers()
	c := NewClock()
	c.newTicker = m.newTicker
	return c, m
}

func receiveTick(t *testing.T, ticks <-chan Tick) Tick {
	t.Helper()
	select {
	case tk := <-ticks:
		return tk
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for tick")
	}
	return Tick{}
}

func expectNoTick(t *testing.T, ticks <-chan Tick) {
	t.Helper()
	select {
	case tk := <-ticks:
		t.Fatalf("unexpected tick %+v", tk)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopIdleClockIsNoop(t *testing.T) {
	c := NewClock()
	if c.Stop() {
		t.Fatalf("Stop on idle clock reported a running schedule")
	}
	if c.State() != Idle {
		t.Fatalf("State = %v, want idle", c.State())
	}
	if c.Stop() {
		t.Fatalf("second Stop reported a running schedule")
	}
}

func TestStartRejectsNonPositivePeriod(t *testing.T) {
	c := NewClock()
	for _, p := range []time.Duration{0, -time.Second} {
		if _, err := c.Start(p, model.NormalProfile); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("Start(%v) error = %v, want ErrInvalidPeriod", p, err)
		}
	}
	if c.State() != Idle {
		t.Fatalf("State = %v after rejected start, want idle", c.State())
	}
}

func TestStartFiresTicksWithProfile(t *testing.T) {
	c, m := newManualClock()
	ticks := make(chan Tick, 8)
	c.AddListener(func(tk Tick) { ticks <- tk })

	gen, err := c.Start(5*time.Second, model.NormalProfile)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.waitCreated(t)

	at := time.Date(2025, time.January, 1, 0, 0, 5, 0, time.UTC)
	m.fire(0, at)
	tk := receiveTick(t, ticks)

	if tk.Generation != gen || tk.Seq != 1 || tk.Profile != model.NormalProfile || tk.Period != 5*time.Second {
		t.Fatalf("tick = %+v, want generation %d seq 1 normal profile", tk, gen)
	}
	if !c.Now().Equal(at) {
		t.Fatalf("Now() = %v, want %v", c.Now(), at)
	}
	period, profile, running := c.Running()
	if !running || period != 5*time.Second || profile != model.NormalProfile {
		t.Fatalf("Running() = %v %v %v", period, profile, running)
	}
}

func TestStartReplacesActiveSchedule(t *testing.T) {
	c, m := newManualClock()
	ticks := make(chan Tick, 8)
	c.AddListener(func(tk Tick) { ticks <- tk })

	first, err := c.Start(time.Second, model.NormalProfile)
	if err != nil {
		t.Fatalf("Start first: %v", err)
	}
	m.waitCreated(t)

	second, err := c.Start(time.Second, model.PostResetProfile)
	if err != nil {
		t.Fatalf("Start second: %v", err)
	}
	m.waitCreated(t)

	if c.IsCurrent(first) {
		t.Fatalf("superseded generation %d still current", first)
	}
	if !c.IsCurrent(second) {
		t.Fatalf("new generation %d not current", second)
	}

	m.fire(0, time.Now())
	expectNoTick(t, ticks)

	m.fire(1, time.Now())
	tk := receiveTick(t, ticks)
	if tk.Generation != second || tk.Profile != model.PostResetProfile {
		t.Fatalf("tick = %+v, want generation %d post-reset", tk, second)
	}
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	c, m := newManualClock()
	ticks := make(chan Tick, 8)
	c.AddListener(func(tk Tick) { ticks <- tk })

	gen, err := c.Start(time.Second, model.NormalProfile)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.waitCreated(t)

	if !c.Stop() {
		t.Fatalf("Stop reported idle clock")
	}
	if c.IsCurrent(gen) {
		t.Fatalf("stopped generation still current")
	}
	m.fire(0, time.Now())
	expectNoTick(t, ticks)

	if c.State() != Idle {
		t.Fatalf("State = %v, want idle", c.State())
	}
}

func TestClockWithRealTicker(t *testing.T) {
	c := NewClock()
	ticks := make(chan Tick, 64)
	c.AddListener(func(tk Tick) {
		select {
		case ticks <- tk:
		default:
		}
	})

	if _, err := c.Start(5*time.Millisecond, model.NormalProfile); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := receiveTick(t, ticks)
	second := receiveTick(t, ticks)
	c.Stop()

	if second.Seq <= first.Seq {
		t.Fatalf("seq did not increase: %d then %d", first.Seq, second.Seq)
	}
}
