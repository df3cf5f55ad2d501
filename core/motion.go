package core

import (
	"math/rand"
	"sync"
	"time"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

// lockedSource makes a *rand.Rand safe for concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// NewRandomSource returns a goroutine-safe source. A zero seed picks one
// from the wall clock.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

// MotionModel moves a device by one tick under the given profile.
type MotionModel interface {
	UpdatePosition(d *model.Device, profile model.PerturbationProfile)
}

// JitterMotionModel applies one random delta per device per tick. The same
// delta is added to both lat and long.
type JitterMotionModel struct {
	rand RandomSource
}

// NewJitterMotionModel constructs a model drawing from src, or from a
// time-seeded source when src is nil.
func NewJitterMotionModel(src RandomSource) *JitterMotionModel {
	if src == nil {
		src = NewRandomSource(0)
	}
	return &JitterMotionModel{rand: src}
}

// Delta draws r in [0,1) and returns -r*Low when r < 0.5, else +r*High.
func (m *JitterMotionModel) Delta(profile model.PerturbationProfile) float64 {
	r := m.rand.Float64()
	if r < 0.5 {
		return -r * profile.Low
	}
	return r * profile.High
}

// UpdatePosition moves d in place by a single coupled delta.
func (m *JitterMotionModel) UpdatePosition(d *model.Device, profile model.PerturbationProfile) {
	if d == nil {
		return
	}
	delta := m.Delta(profile)
	d.Lat += delta
	d.Long += delta
}

// StaticMotionModel leaves devices where they are.
type StaticMotionModel struct{}

// UpdatePosition for static motion does nothing.
func (StaticMotionModel) UpdatePosition(*model.Device, model.PerturbationProfile) {}
