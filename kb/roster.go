package kb

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// DefaultRoster returns the built-in five-device fleet.
func DefaultRoster() []model.Device {
	return []model.Device{
		{Name: "Device 1", Lat: 35.0381234, Long: 32.5811234},
		{Name: "Device 2", Lat: 34.8481234, Long: 32.6811234},
		{Name: "Device 3", Lat: 34.9581234, Long: 33.0811234},
		{Name: "Device 4", Lat: 35.0681234, Long: 33.4811234},
		{Name: "Device 5", Lat: 35.0781234, Long: 33.5511234},
	}
}

// rosterFile is the YAML layout of a roster file:
//
//	devices:
//	  - name: Device 1
//	    lat: 35.0381234
//	    long: 32.5811234
type rosterFile struct {
	Devices []model.Device `yaml:"devices"`
}

// LoadRoster decodes a YAML roster. Validation of names is left to
// NewDeviceStore.
func LoadRoster(r io.Reader) ([]model.Device, error) {
	var f rosterFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyRoster
		}
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	if len(f.Devices) == 0 {
		return nil, ErrEmptyRoster
	}
	return f.Devices, nil
}

// LoadRosterFile reads a YAML roster from path.
func LoadRosterFile(path string) ([]model.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster %q: %w", path, err)
	}
	defer f.Close()

	devices, err := LoadRoster(f)
	if err != nil {
		return nil, fmt.Errorf("roster %q: %w", path, err)
	}
	return devices, nil
}
