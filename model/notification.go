package model

// NotificationKind identifies the notification variant. The values are the
// ones observers already understand.
type NotificationKind string

const (
	NotificationProximity NotificationKind = "Proximity"
	NotificationEntered   NotificationKind = "entered"
)

// Notification is a transient alert produced by one evaluation pass.
//
// Proximity notifications set DeviceA and DeviceB; containment
// notifications set Device and Area, where Area is the first polygon the
// device was found in and Text lists every polygon.
type Notification struct {
	Kind    NotificationKind `json:"type"`
	DeviceA string           `json:"device1,omitempty"`
	DeviceB string           `json:"device2,omitempty"`
	Device  string           `json:"device,omitempty"`
	Area    string           `json:"area,omitempty"`
	Text    string           `json:"text"`
}

// References reports whether a proximity notification names the device as
// either party.
func (n Notification) References(name string) bool {
	return n.Kind == NotificationProximity && (n.DeviceA == name || n.DeviceB == name)
}
