package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestLatLongWritesNonFiniteAsNull(t *testing.T) {
	data, err := json.Marshal(LatLong{Lat: math.NaN(), Long: 1.5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[null,1.5]" {
		t.Fatalf("got %s, want [null,1.5]", data)
	}

	var p LatLong
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !math.IsNaN(p.Lat) || p.Long != 1.5 {
		t.Fatalf("decoded %+v, want NaN lat", p)
	}
}

func TestPolygonIsGeoJSONFeature(t *testing.T) {
	p := Polygon{
		ID:   "p-1",
		Name: "Zone A",
		Ring: []LatLong{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"Feature","id":"p-1","properties":{"name":"Zone A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}`
	if string(data) != want {
		t.Fatalf("got %s\nwant %s", data, want)
	}

	var back Polygon
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != p.ID || back.Name != p.Name || len(back.Ring) != 5 || back.Ring[2] != p.Ring[2] {
		t.Fatalf("decoded %+v", back)
	}
}

func TestPolygonRejectsOtherGeometry(t *testing.T) {
	var p Polygon
	err := json.Unmarshal([]byte(`{"type":"Feature","properties":{"name":"x"},"geometry":{"type":"Point","coordinates":[]}}`), &p)
	if err == nil {
		t.Fatalf("expected error for Point geometry")
	}
}

func TestEmptyPolygonEncodesEmptyRing(t *testing.T) {
	data, err := json.Marshal(Polygon{Name: "empty"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"Feature","properties":{"name":"empty"},"geometry":{"type":"Polygon","coordinates":[[]]}}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestPolygonCloneIsDeep(t *testing.T) {
	p := Polygon{Name: "a", Ring: []LatLong{{1, 2}}}
	c := p.Clone()
	c.Ring[0].Lat = 9
	if p.Ring[0].Lat != 1 {
		t.Fatalf("clone aliased the ring")
	}
}

func TestDeviceJSON(t *testing.T) {
	data, err := json.Marshal(Device{Name: "Device 1", Lat: 35.5, Long: math.Inf(1)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"name":"Device 1","lat":35.5,"long":null}` {
		t.Fatalf("got %s", data)
	}

	var d Device
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Name != "Device 1" || d.Lat != 35.5 || !math.IsNaN(d.Long) {
		t.Fatalf("decoded %+v", d)
	}
}

func TestNotificationReferences(t *testing.T) {
	n := Notification{Kind: NotificationProximity, DeviceA: "Device 4", DeviceB: "Device 5"}
	if !n.References("Device 4") || !n.References("Device 5") || n.References("Device 1") {
		t.Fatalf("References mismatch for %+v", n)
	}
	entered := Notification{Kind: NotificationEntered, Device: "Device 4", Area: "Zone A"}
	if entered.References("Device 4") {
		t.Fatalf("containment notification should not reference proximity parties")
	}
}
