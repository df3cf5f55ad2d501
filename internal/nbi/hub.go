package nbi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	sim "github.com/signalsfoundry/geofence-simulator/internal/sim/state"
	"github.com/signalsfoundry/geofence-simulator/model"
)

// Event names on the observer stream.
const (
	EventAreas         = "areas"
	EventDeviceUpdates = "deviceUpdates"
	EventNotifications = "notifications"
	EventError         = "error"
)

// DefaultObserverBuffer is the number of queued messages an observer may
// fall behind by before it is dropped.
const DefaultObserverBuffer = 64

// Envelope is one message on the observer stream.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ObserverMetrics receives the connected observer count.
type ObserverMetrics interface {
	SetObservers(n int)
}

type observer struct {
	id   string
	send chan []byte
}

// Hub fans tick payloads out to connected observers. Broadcast never
// blocks: an observer whose buffer is full is disconnected.
type Hub struct {
	mu        sync.Mutex
	observers map[string]*observer
	buffer    int
	closed    bool

	metrics ObserverMetrics
	log     logging.Logger
}

// HubOption customises Hub construction.
type HubOption func(*Hub)

// WithObserverBuffer sets the per-observer queue length.
func WithObserverBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithObserverMetrics attaches an observer count recorder.
func WithObserverMetrics(m ObserverMetrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub returns an empty hub.
func NewHub(log logging.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	h := &Hub{
		observers: make(map[string]*observer),
		buffer:    DefaultObserverBuffer,
		log:       log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// register adds an observer whose queue already holds the given initial
// messages, so they are delivered before any broadcast.
func (h *Hub) register(id string, initial ...[]byte) (*observer, bool) {
	o := &observer{id: id, send: make(chan []byte, h.buffer+len(initial))}
	for _, msg := range initial {
		o.send <- msg
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, false
	}
	h.observers[id] = o
	n := len(h.observers)
	h.mu.Unlock()

	h.setObservers(n)
	h.log.Info(context.Background(), "observer connected", logging.String("observer_id", id), logging.Int("observers", n))
	return o, true
}

// unregister removes the observer and closes its queue. It is a no-op for
// observers that were already dropped.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	o, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
		close(o.send)
	}
	n := len(h.observers)
	h.mu.Unlock()

	if ok {
		h.setObservers(n)
		h.log.Info(context.Background(), "observer disconnected", logging.String("observer_id", id), logging.Int("observers", n))
	}
}

// Len returns the number of connected observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast sends the tick payload to every observer as deviceUpdates,
// notifications and areas events. Implements state.Broadcaster.
func (h *Hub) Broadcast(ctx context.Context, payload sim.TickPayload) {
	msgs, err := tickMessages(payload)
	if err != nil {
		h.log.Error(ctx, "encode tick payload", logging.Uint64("seq", payload.Seq), logging.Err(err))
		return
	}
	h.publish(ctx, msgs...)
}

// BroadcastAreas sends the polygon list to every observer.
func (h *Hub) BroadcastAreas(ctx context.Context, polygons []model.Polygon) {
	msg, err := encodeEnvelope(EventAreas, nonNilPolygons(polygons))
	if err != nil {
		h.log.Error(ctx, "encode areas", logging.Err(err))
		return
	}
	h.publish(ctx, msg)
}

func (h *Hub) publish(ctx context.Context, msgs ...[]byte) {
	h.mu.Lock()
	var dropped []string
	for id, o := range h.observers {
		if !enqueue(o, msgs) {
			delete(h.observers, id)
			close(o.send)
			dropped = append(dropped, id)
		}
	}
	n := len(h.observers)
	h.mu.Unlock()

	if len(dropped) > 0 {
		h.setObservers(n)
		for _, id := range dropped {
			h.log.Warn(ctx, "dropping slow observer", logging.String("observer_id", id))
		}
	}
}

// publishTo queues messages for a single observer, dropping it when its
// queue is full.
func (h *Hub) publishTo(id string, msgs ...[]byte) {
	h.mu.Lock()
	o, ok := h.observers[id]
	if ok && !enqueue(o, msgs) {
		delete(h.observers, id)
		close(o.send)
		ok = false
	}
	n := len(h.observers)
	h.mu.Unlock()
	if !ok {
		h.setObservers(n)
	}
}

func enqueue(o *observer, msgs [][]byte) bool {
	for _, msg := range msgs {
		select {
		case o.send <- msg:
		default:
			return false
		}
	}
	return true
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, o := range h.observers {
		delete(h.observers, id)
		close(o.send)
	}
	h.mu.Unlock()
	h.setObservers(0)
}

func (h *Hub) setObservers(n int) {
	if h.metrics != nil {
		h.metrics.SetObservers(n)
	}
}

func tickMessages(payload sim.TickPayload) ([][]byte, error) {
	devices, err := encodeEnvelope(EventDeviceUpdates, payload.Devices)
	if err != nil {
		return nil, err
	}
	notifications, err := encodeEnvelope(EventNotifications, payload.Notifications)
	if err != nil {
		return nil, err
	}
	areas, err := encodeEnvelope(EventAreas, nonNilPolygons(payload.Polygons))
	if err != nil {
		return nil, err
	}
	return [][]byte{devices, notifications, areas}, nil
}

func nonNilPolygons(in []model.Polygon) []model.Polygon {
	if in == nil {
		return []model.Polygon{}
	}
	return in
}
