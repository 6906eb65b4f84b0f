package entity

import (
	"fmt"
	"os"
	"strings"

	"github.com/kuretru/ha-minimqtt/entity/hass"
)

// DeviceIdentifier describes the physical device running a set of entities.
// It is immutable and shared by every entity of that device so Home
// Assistant groups them under one device page.
type DeviceIdentifier struct {
	manufacturer string
	model        string
	identifier   string
}

// NewDeviceIdentifier validates and builds a device identifier. An empty
// identifier defaults to the host name.
func NewDeviceIdentifier(manufacturer, model, identifier string) (*DeviceIdentifier, error) {
	if strings.TrimSpace(manufacturer) == "" {
		return nil, fmt.Errorf("device: manufacturer must not be blank")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("device: model must not be blank")
	}
	if strings.TrimSpace(identifier) == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("device: resolve hostname: %w", err)
		}
		identifier = hostname
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("device: identifier must not be blank")
	}
	return &DeviceIdentifier{manufacturer: manufacturer, model: model, identifier: identifier}, nil
}

func (d *DeviceIdentifier) Manufacturer() string { return d.manufacturer }
func (d *DeviceIdentifier) Model() string        { return d.model }
func (d *DeviceIdentifier) Identifier() string   { return d.identifier }

// Equal compares manufacturer and model. The identifier only names the
// host that runs the device and is not part of its identity.
func (d *DeviceIdentifier) Equal(other *DeviceIdentifier) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.manufacturer == other.manufacturer && d.model == other.model
}

// DeviceInfo renders the discovery device block.
func (d *DeviceIdentifier) DeviceInfo() hass.DeviceInfo {
	return hass.DeviceInfo{
		Identifiers:  []string{d.identifier},
		Name:         d.identifier,
		Manufacturer: d.manufacturer,
		Model:        d.model,
	}
}

// AvailabilityTopic is the device wide availability topic under prefix.
func AvailabilityTopic(prefix string, device *DeviceIdentifier) string {
	return prefix + "/" + device.identifier + "/availability"
}
