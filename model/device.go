package model

import (
	"encoding/json"
	"math"
)

// LatLong is a position in decimal degrees. The first coordinate is the
// latitude and the second the longitude, matching the [lat, long] pairs
// used on the wire.
type LatLong struct {
	Lat  float64
	Long float64
}

// MarshalJSON encodes the point as a [lat, long] pair. Non-finite values
// (NaN from a malformed polygon anchor) are written as null so that a bad
// coordinate never breaks a broadcast.
func (p LatLong) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*float64{finiteOrNil(p.Lat), finiteOrNil(p.Long)})
}

// UnmarshalJSON accepts a [lat, long] pair; null decodes as NaN.
func (p *LatLong) UnmarshalJSON(data []byte) error {
	var pair [2]*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Lat, p.Long = valueOrNaN(pair[0]), valueOrNaN(pair[1])
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Device is a simulated point device. Name is the stable identity of the
// device within a roster.
type Device struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Long float64 `json:"long" yaml:"long"`
}

// Position returns the device's current coordinates.
func (d Device) Position() LatLong {
	return LatLong{Lat: d.Lat, Long: d.Long}
}

type deviceJSON struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
}

// MarshalJSON writes non-finite coordinates as null, like LatLong.
func (d Device) MarshalJSON() ([]byte, error) {
	return json.Marshal(deviceJSON{Name: d.Name, Lat: finiteOrNil(d.Lat), Long: finiteOrNil(d.Long)})
}

// UnmarshalJSON decodes null coordinates as NaN.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw deviceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Name, d.Lat, d.Long = raw.Name, valueOrNaN(raw.Lat), valueOrNaN(raw.Long)
	return nil
}
