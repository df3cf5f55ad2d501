package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/geofence-simulator/core"
	"github.com/signalsfoundry/geofence-simulator/model"
)

var (
	// ErrEmptyRoster indicates a store was created without devices.
	ErrEmptyRoster = errors.New("roster has no devices")
	// ErrDeviceNameEmpty indicates a roster entry without a name.
	ErrDeviceNameEmpty = errors.New("device name is empty")
	// ErrDeviceExists indicates two roster entries share a name.
	ErrDeviceExists = errors.New("device already exists")
)

// EventType indicates what kind of change happened in a store.
type EventType int

const (
	EventDevicesPerturbed EventType = iota
	EventDevicesReset
	EventPolygonAdded
	EventPolygonsCleared
)

func (t EventType) String() string {
	switch t {
	case EventDevicesPerturbed:
		return "devices_perturbed"
	case EventDevicesReset:
		return "devices_reset"
	case EventPolygonAdded:
		return "polygon_added"
	case EventPolygonsCleared:
		return "polygons_cleared"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers after a store mutation.
type Event struct {
	Type    EventType
	Devices int
	Polygon *model.Polygon
}

// subscribers is the subscription list shared by both stores.
type subscribers struct {
	fns map[int]func(Event)
	seq int
}

func (s *subscribers) add(fn func(Event)) int {
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	s.seq++
	s.fns[s.seq] = fn
	return s.seq
}

func (s *subscribers) snapshot() []func(Event) {
	out := make([]func(Event), 0, len(s.fns))
	for i := 1; i <= s.seq; i++ {
		if fn, ok := s.fns[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// DeviceStore is an in-memory, thread-safe roster of simulated devices. It
// keeps the live positions and an initial snapshot captured at construction.
type DeviceStore struct {
	mu sync.RWMutex

	initial []model.Device
	live    []model.Device

	subs subscribers
}

// NewDeviceStore captures roster as the initial snapshot. Names must be
// non-empty and unique.
func NewDeviceStore(roster []model.Device) (*DeviceStore, error) {
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}
	seen := make(map[string]struct{}, len(roster))
	for i, d := range roster {
		if d.Name == "" {
			return nil, fmt.Errorf("roster entry %d: %w", i, ErrDeviceNameEmpty)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("device %q: %w", d.Name, ErrDeviceExists)
		}
		seen[d.Name] = struct{}{}
	}

	return &DeviceStore{
		initial: cloneDevices(roster),
		live:    cloneDevices(roster),
	}, nil
}

// Perturb moves every device once with the given motion model and profile.
func (s *DeviceStore) Perturb(motion core.MotionModel, profile model.PerturbationProfile) {
	if motion == nil {
		return
	}
	s.mu.Lock()
	for i := range s.live {
		motion.UpdatePosition(&s.live[i], profile)
	}
	event := Event{Type: EventDevicesPerturbed, Devices: len(s.live)}
	subs := s.subs.snapshot()
	s.mu.Unlock()

	notify(subs, event)
}

// ResetToInitial restores every device to its initial position.
func (s *DeviceStore) ResetToInitial() {
	s.mu.Lock()
	s.live = cloneDevices(s.initial)
	event := Event{Type: EventDevicesReset, Devices: len(s.live)}
	subs := s.subs.snapshot()
	s.mu.Unlock()

	notify(subs, event)
}

// Snapshot returns a copy of the live roster in declaration order.
func (s *DeviceStore) Snapshot() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDevices(s.live)
}

// Initial returns a copy of the initial roster.
func (s *DeviceStore) Initial() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDevices(s.initial)
}

// Len returns the roster size.
func (s *DeviceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function.
func (s *DeviceStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.subs.add(fn)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs.fns, id)
	}
}

// notify runs subscribers outside the store lock to avoid deadlocks.
func notify(subs []func(Event), event Event) {
	for _, fn := range subs {
		fn(event)
	}
}

func cloneDevices(in []model.Device) []model.Device {
	return append([]model.Device(nil), in...)
}
