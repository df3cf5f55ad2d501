package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// SquareEdgeDegrees is the edge length of every geofence square.
const SquareEdgeDegrees = 0.1332

// ErrInvalidCoordinate is returned by strict coordinate parsing.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// NewSquarePolygon builds a closed square ring anchored at anchor and
// growing SquareEdgeDegrees north then east:
//
//	(lat,long) → (lat+e,long) → (lat+e,long+e) → (lat,long+e) → (lat,long)
func NewSquarePolygon(name string, anchor model.LatLong) model.Polygon {
	const e = SquareEdgeDegrees
	lat, long := anchor.Lat, anchor.Long
	return model.Polygon{
		ID:   uuid.NewString(),
		Name: name,
		Ring: []model.LatLong{
			{Lat: lat, Long: long},
			{Lat: lat + e, Long: long},
			{Lat: lat + e, Long: long + e},
			{Lat: lat, Long: long + e},
			{Lat: lat, Long: long},
		},
	}
}

// ParseCoordinate parses a decimal-degree value from external text.
//
// In permissive mode a value that does not parse becomes NaN and no error
// is returned; the resulting polygon is structurally valid but never
// contains anything. In strict mode the same input yields
// ErrInvalidCoordinate, as does a parsed value that is not finite.
func ParseCoordinate(text string, strict bool) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if !strict {
		if err != nil {
			return math.NaN(), nil
		}
		return v, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidCoordinate, text)
	}
	return v, nil
}

// ParseAnchor parses a lat/long pair with ParseCoordinate.
func ParseAnchor(latText, longText string, strict bool) (model.LatLong, error) {
	lat, err := ParseCoordinate(latText, strict)
	if err != nil {
		return model.LatLong{}, fmt.Errorf("lat: %w", err)
	}
	long, err := ParseCoordinate(longText, strict)
	if err != nil {
		return model.LatLong{}, fmt.Errorf("long: %w", err)
	}
	return model.LatLong{Lat: lat, Long: long}, nil
}
