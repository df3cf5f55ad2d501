package nbi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	sim "github.com/signalsfoundry/geofence-simulator/internal/sim/state"
	"github.com/signalsfoundry/geofence-simulator/model"
)

type countingMetrics struct{ last int }

func (m *countingMetrics) SetObservers(n int) { m.last = n }

func drain(o *observer) []Envelope {
	var out []Envelope
	for {
		select {
		case msg, ok := <-o.send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(msg, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestHubBroadcastOrder(t *testing.T) {
	h := NewHub(logging.Noop())
	a, ok := h.register("a")
	require.True(t, ok)
	b, ok := h.register("b")
	require.True(t, ok)

	h.Broadcast(context.Background(), sim.TickPayload{
		Seq:     1,
		Devices: []model.Device{{Name: "Device 1"}},
	})

	for _, o := range []*observer{a, b} {
		envs := drain(o)
		require.Len(t, envs, 3)
		assert.Equal(t, EventDeviceUpdates, envs[0].Event)
		assert.Equal(t, EventNotifications, envs[1].Event)
		assert.Equal(t, EventAreas, envs[2].Event)
		assert.JSONEq(t, "[]", string(envs[2].Data))
	}
}

func TestHubInitialMessagesComeFirst(t *testing.T) {
	h := NewHub(logging.Noop(), WithObserverBuffer(1))
	initial, err := encodeEnvelope(EventAreas, []model.Polygon{})
	require.NoError(t, err)

	o, ok := h.register("a", initial)
	require.True(t, ok)
	envs := drain(o)
	require.Len(t, envs, 1)
	assert.Equal(t, EventAreas, envs[0].Event)
}

func TestHubDropsSlowObserver(t *testing.T) {
	m := &countingMetrics{}
	h := NewHub(logging.Noop(), WithObserverBuffer(4), WithObserverMetrics(m))
	slow, _ := h.register("slow")
	fast, _ := h.register("fast")
	assert.Equal(t, 2, m.last)

	h.Broadcast(context.Background(), sim.TickPayload{Seq: 1})
	drain(fast)
	h.Broadcast(context.Background(), sim.TickPayload{Seq: 2})

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1, m.last)

	// The slow observer keeps what fit in its buffer, then its queue closes.
	n := 0
	for range slow.send {
		n++
	}
	assert.Equal(t, 4, n)
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	h := NewHub(logging.Noop())
	h.register("a")
	h.unregister("a")
	h.unregister("a")
	h.publishTo("a", []byte(`{}`))
	assert.Equal(t, 0, h.Len())
}

func TestHubCloseRejectsNewObservers(t *testing.T) {
	h := NewHub(logging.Noop())
	o, _ := h.register("a")
	h.Close()

	_, open := <-o.send
	assert.False(t, open)
	_, ok := h.register("b")
	assert.False(t, ok)
	h.unregister("a")
}
