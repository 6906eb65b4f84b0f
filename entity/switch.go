package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuretru/ha-minimqtt/entity/hass"
)

const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// Switch is an ON/OFF command entity.
type Switch struct {
	*base
}

func NewSwitch(uniqueID, name string, device *DeviceIdentifier, handler CommandHandler,
	deviceClass string, opts ...Option) (*Switch, error) {
	if handler == nil {
		return nil, fmt.Errorf("entity %s: switch requires a handler", uniqueID)
	}
	if !hass.ValidDeviceClass(hass.ComponentSwitch, deviceClass) {
		return nil, invalid(uniqueID, "device_class", deviceClass, "unknown switch device class")
	}
	b, err := newBase(hass.ComponentSwitch, uniqueID, name, device, handler, "mdi:toggle-switch", categoryConfig, opts)
	if err != nil {
		return nil, err
	}
	b.deviceClass = deviceClass
	s := &Switch{base: b}
	b.self, b.variant = s, s
	return s, nil
}

func (s *Switch) OnMessage(ctx context.Context, topic string, payload []byte) error {
	return s.onMessage(ctx, topic, payload)
}

func (s *Switch) check(value string) (string, error) {
	switch v := strings.ToUpper(strings.TrimSpace(value)); v {
	case StateOn, StateOff:
		return v, nil
	default:
		return "", invalid(s.uniqueID, "state", value, "must be ON or OFF")
	}
}

func (s *Switch) addDiscovery(cfg *hass.DiscoveryConfig) {
	cfg.PayloadOn = StateOn
	cfg.PayloadOff = StateOff
}

func (s *Switch) encodeState(state string) (string, error)     { return s.check(state) }
func (s *Switch) decodeCommand(payload string) (string, error) { return s.check(payload) }
