package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/geofence-simulator/model"
)

func TestNewSquarePolygonRing(t *testing.T) {
	p := NewSquarePolygon("Zone A", model.LatLong{Lat: 10, Long: 20})

	if p.Name != "Zone A" {
		t.Fatalf("Name = %q, want Zone A", p.Name)
	}
	if p.ID == "" {
		t.Fatalf("expected a generated polygon ID")
	}
	want := []model.LatLong{
		{Lat: 10, Long: 20},
		{Lat: 10 + SquareEdgeDegrees, Long: 20},
		{Lat: 10 + SquareEdgeDegrees, Long: 20 + SquareEdgeDegrees},
		{Lat: 10, Long: 20 + SquareEdgeDegrees},
		{Lat: 10, Long: 20},
	}
	if len(p.Ring) != len(want) {
		t.Fatalf("ring has %d vertices, want %d", len(p.Ring), len(want))
	}
	for i := range want {
		if p.Ring[i] != want[i] {
			t.Fatalf("ring[%d] = %v, want %v", i, p.Ring[i], want[i])
		}
	}
	if p.Ring[0] != p.Ring[len(p.Ring)-1] {
		t.Fatalf("ring is not closed")
	}
}

func TestNewSquarePolygonUniqueIDs(t *testing.T) {
	a := NewSquarePolygon("same", model.LatLong{})
	b := NewSquarePolygon("same", model.LatLong{})
	if a.ID == b.ID {
		t.Fatalf("expected distinct IDs for two polygons, got %q twice", a.ID)
	}
}

func TestZoneAContainment(t *testing.T) {
	zone := NewSquarePolygon("Zone A", model.LatLong{Lat: 10, Long: 10})
	if !PointInPolygon(model.LatLong{Lat: 10.05, Long: 10.05}, zone.Ring) {
		t.Fatalf("expected (10.05, 10.05) inside Zone A")
	}
}

func TestParseCoordinatePermissive(t *testing.T) {
	v, err := ParseCoordinate(" 35.5 ", false)
	if err != nil || v != 35.5 {
		t.Fatalf("ParseCoordinate(35.5) = %v, %v", v, err)
	}

	for _, in := range []string{"", "abc", "12,5"} {
		v, err := ParseCoordinate(in, false)
		if err != nil {
			t.Fatalf("permissive ParseCoordinate(%q) returned error %v", in, err)
		}
		if !math.IsNaN(v) {
			t.Fatalf("permissive ParseCoordinate(%q) = %v, want NaN", in, v)
		}
	}
}

func TestParseCoordinateStrict(t *testing.T) {
	if v, err := ParseCoordinate("-12.25", true); err != nil || v != -12.25 {
		t.Fatalf("ParseCoordinate(-12.25) = %v, %v", v, err)
	}
	for _, in := range []string{"", "north", "NaN", "Inf"} {
		if _, err := ParseCoordinate(in, true); !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("strict ParseCoordinate(%q) error = %v, want ErrInvalidCoordinate", in, err)
		}
	}
}

func TestParseAnchor(t *testing.T) {
	anchor, err := ParseAnchor("10", "x", false)
	if err != nil {
		t.Fatalf("ParseAnchor permissive: %v", err)
	}
	if anchor.Lat != 10 || !math.IsNaN(anchor.Long) {
		t.Fatalf("ParseAnchor = %v, want {10 NaN}", anchor)
	}

	if _, err := ParseAnchor("10", "x", true); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("ParseAnchor strict error = %v, want ErrInvalidCoordinate", err)
	}
}
