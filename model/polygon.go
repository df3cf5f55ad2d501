package model

import (
	"encoding/json"
	"fmt"
)

// Polygon is a named geofence. Ring is a closed ring of vertices: the last
// vertex repeats the first.
type Polygon struct {
	ID   string
	Name string
	Ring []LatLong
}

// geoJSONFeature is the wire shape of a Polygon: a GeoJSON Feature with a
// single-ring Polygon geometry whose positions are [lat, long] pairs.
type geoJSONFeature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Properties geoJSONProperties `json:"properties"`
	Geometry   geoJSONGeometry   `json:"geometry"`
}

type geoJSONProperties struct {
	Name string `json:"name"`
}

type geoJSONGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]LatLong `json:"coordinates"`
}

// MarshalJSON encodes the polygon as a GeoJSON Feature.
func (p Polygon) MarshalJSON() ([]byte, error) {
	ring := p.Ring
	if ring == nil {
		ring = []LatLong{}
	}
	return json.Marshal(geoJSONFeature{
		Type:       "Feature",
		ID:         p.ID,
		Properties: geoJSONProperties{Name: p.Name},
		Geometry: geoJSONGeometry{
			Type:        "Polygon",
			Coordinates: [][]LatLong{ring},
		},
	})
}

// UnmarshalJSON decodes a GeoJSON Feature produced by MarshalJSON.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	var f geoJSONFeature
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Geometry.Type != "" && f.Geometry.Type != "Polygon" {
		return fmt.Errorf("unsupported geometry type %q", f.Geometry.Type)
	}
	p.ID = f.ID
	p.Name = f.Properties.Name
	p.Ring = nil
	if len(f.Geometry.Coordinates) > 0 {
		p.Ring = f.Geometry.Coordinates[0]
	}
	return nil
}

// Clone returns a deep copy of the polygon.
func (p Polygon) Clone() Polygon {
	out := p
	out.Ring = append([]LatLong(nil), p.Ring...)
	return out
}
