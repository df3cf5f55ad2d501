package core

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/signalsfoundry/geofence-simulator/model"
)

func startRoster() []model.Device {
	return []model.Device{
		{Name: "Device 1", Lat: 35.0381234, Long: 32.5811234},
		{Name: "Device 2", Lat: 34.8481234, Long: 32.6811234},
		{Name: "Device 3", Lat: 34.9581234, Long: 33.0811234},
		{Name: "Device 4", Lat: 35.0681234, Long: 33.4811234},
		{Name: "Device 5", Lat: 35.0781234, Long: 33.5511234},
	}
}

func assertGoldenNotifications(t *testing.T, name string, got []model.Notification) {
	t.Helper()

	data, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		t.Fatalf("marshal notifications: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestEvaluateStartRoster(t *testing.T) {
	got := NewNotificationEngine().Evaluate(startRoster(), nil)
	assertGoldenNotifications(t, "start_roster", got)
}

func TestEvaluateMixedScenario(t *testing.T) {
	devices := []model.Device{
		{Name: "Alpha", Lat: 10.06, Long: 10.06},
		{Name: "Bravo", Lat: 10.07, Long: 10.07},
		{Name: "Charlie", Lat: 10.11, Long: 10.11},
		{Name: "Delta", Lat: 20, Long: 20},
	}
	polygons := []model.Polygon{
		NewSquarePolygon("Zone A", model.LatLong{Lat: 10, Long: 10}),
		NewSquarePolygon("Zone B", model.LatLong{Lat: 10.1, Long: 10}),
	}

	got := NewNotificationEngine().Evaluate(devices, polygons)
	assertGoldenNotifications(t, "mixed_scenario", got)
}

func TestEvaluateFirstMatchNotNearest(t *testing.T) {
	// B is nearer to C than A is, but C scans A first and pairs with it.
	devices := []model.Device{
		{Name: "A", Lat: 0, Long: 0},
		{Name: "B", Lat: 0, Long: 0.05},
		{Name: "C", Lat: 0, Long: 0.06},
	}
	got := NewNotificationEngine().Evaluate(devices, nil)

	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2: %+v", len(got), got)
	}
	if got[0].DeviceA != "A" || got[0].DeviceB != "B" {
		t.Fatalf("first notification = %+v, want A/B", got[0])
	}
	if got[1].DeviceA != "C" || got[1].DeviceB != "A" {
		t.Fatalf("second notification = %+v, want C/A", got[1])
	}
}

func TestEvaluateThresholdInclusive(t *testing.T) {
	a := model.Device{Name: "A", Lat: 0, Long: 0}
	b := model.Device{Name: "B", Lat: 0.05, Long: 0}
	d := DistanceKm(a.Position(), b.Position())

	engine := &NotificationEngine{ProximityKm: d}
	if got := engine.Evaluate([]model.Device{a, b}, nil); len(got) != 1 {
		t.Fatalf("distance equal to threshold: got %d notifications, want 1", len(got))
	}

	engine.ProximityKm = d * 0.999
	if got := engine.Evaluate([]model.Device{a, b}, nil); len(got) != 0 {
		t.Fatalf("distance above threshold: got %d notifications, want 0", len(got))
	}
}

func TestEvaluateDegenerateInputs(t *testing.T) {
	engine := NewNotificationEngine()

	if got := engine.Evaluate(nil, nil); len(got) != 0 {
		t.Fatalf("empty roster produced %d notifications", len(got))
	}
	single := []model.Device{{Name: "solo", Lat: 0.05, Long: 0.05}}
	if got := engine.Evaluate(single, nil); len(got) != 0 {
		t.Fatalf("single device produced %d notifications", len(got))
	}
	empty := []model.Polygon{{Name: "empty"}}
	if got := engine.Evaluate(single, empty); len(got) != 0 {
		t.Fatalf("zero-vertex polygon produced %d notifications", len(got))
	}
}

func TestEvaluateZoneAClearedEmitsNothing(t *testing.T) {
	devices := []model.Device{{Name: "probe", Lat: 10.05, Long: 10.05}}
	zone := NewSquarePolygon("Zone A", model.LatLong{Lat: 10, Long: 10})
	engine := NewNotificationEngine()

	got := engine.Evaluate(devices, []model.Polygon{zone})
	if len(got) != 1 || got[0].Kind != model.NotificationEntered || got[0].Area != "Zone A" {
		t.Fatalf("with Zone A: got %+v, want one entered notification", got)
	}
	if got := engine.Evaluate(devices, nil); len(got) != 0 {
		t.Fatalf("after clear: got %+v, want none", got)
	}
}

func TestCountByKind(t *testing.T) {
	ns := []model.Notification{
		{Kind: model.NotificationProximity},
		{Kind: model.NotificationEntered},
		{Kind: model.NotificationEntered},
	}
	p, c := CountByKind(ns)
	if p != 1 || c != 2 {
		t.Fatalf("CountByKind = %d, %d, want 1, 2", p, c)
	}
}
