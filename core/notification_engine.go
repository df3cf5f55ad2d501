package core

import (
	"fmt"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// DefaultProximityKm is the distance at or below which two devices are
// reported as too close.
const DefaultProximityKm = 10.0

// NotificationEngine recomputes the full notification list from a device
// snapshot and the active polygons. It keeps no state between calls.
//
// The proximity pass is first-match, not nearest-match: each device is
// paired with the first other roster entry within range, and a device
// already named by a proximity notification (as either party) does
// not start a scan of its own. The result therefore depends on roster order
// and is not the set of all close pairs.
type NotificationEngine struct {
	// ProximityKm is the inclusive distance threshold for proximity.
	ProximityKm float64
}

// NewNotificationEngine returns an engine using DefaultProximityKm.
func NewNotificationEngine() *NotificationEngine {
	return &NotificationEngine{ProximityKm: DefaultProximityKm}
}

// Evaluate returns every proximity notification in device-then-partner
// order followed by every containment notification in device-then-polygon
// order.
func (ne *NotificationEngine) Evaluate(devices []model.Device, polygons []model.Polygon) []model.Notification {
	threshold := DefaultProximityKm
	if ne != nil && ne.ProximityKm > 0 {
		threshold = ne.ProximityKm
	}

	out := ne.proximity(devices, threshold)
	return append(out, ne.containment(devices, polygons)...)
}

func (ne *NotificationEngine) proximity(devices []model.Device, thresholdKm float64) []model.Notification {
	var out []model.Notification
	paired := make(map[string]bool, len(devices))

	for i := range devices {
		d := devices[i]
		for j := range devices {
			if i == j || paired[d.Name] {
				continue
			}
			e := devices[j]
			if DistanceKm(d.Position(), e.Position()) <= thresholdKm {
				out = append(out, model.Notification{
					Kind:    model.NotificationProximity,
					DeviceA: d.Name,
					DeviceB: e.Name,
					Text:    fmt.Sprintf("%s is too close to %s", d.Name, e.Name),
				})
				paired[d.Name] = true
				paired[e.Name] = true
			}
		}
	}
	return out
}

func (ne *NotificationEngine) containment(devices []model.Device, polygons []model.Polygon) []model.Notification {
	var out []model.Notification

	for _, d := range devices {
		idx := -1
		for _, p := range polygons {
			if !PointInPolygon(d.Position(), p.Ring) {
				continue
			}
			if idx >= 0 {
				out[idx].Text += ", [" + p.Name + "]"
				continue
			}
			out = append(out, model.Notification{
				Kind:   model.NotificationEntered,
				Device: d.Name,
				Area:   p.Name,
				Text:   fmt.Sprintf("%s entered Area - [%s]", d.Name, p.Name),
			})
			idx = len(out) - 1
		}
	}
	return out
}

// CountByKind splits a notification list into proximity and containment
// counts.
func CountByKind(notifications []model.Notification) (proximity, containment int) {
	for _, n := range notifications {
		switch n.Kind {
		case model.NotificationProximity:
			proximity++
		case model.NotificationEntered:
			containment++
		}
	}
	return proximity, containment
}
