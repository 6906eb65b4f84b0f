package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuretru/ha-minimqtt/entity/hass"
	"github.com/kuretru/ha-minimqtt/internal/utils"
)

// NumberConfig holds the range and presentation of a Number.
type NumberConfig struct {
	Min         float64
	Max         float64
	Step        float64
	Mode        string
	DeviceClass string
	Unit        string
}

// DefaultNumberConfig is a 1..100 slider-or-box with a step of 1.
func DefaultNumberConfig() NumberConfig {
	return NumberConfig{Min: 1, Max: 100, Step: 1, Mode: hass.NumberModeAuto}
}

// Number is a numeric entity that accepts values in [Min, Max].
type Number struct {
	*base
	cfg NumberConfig
}

func NewNumber(uniqueID, name string, device *DeviceIdentifier, handler CommandHandler,
	cfg NumberConfig, opts ...Option) (*Number, error) {
	if handler == nil {
		return nil, fmt.Errorf("entity %s: number requires a handler", uniqueID)
	}
	if cfg.Step == 0 {
		cfg.Step = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = hass.NumberModeAuto
	}
	if cfg.Min >= cfg.Max {
		return nil, invalid(uniqueID, "range", fmt.Sprintf("%v..%v", cfg.Min, cfg.Max), "minimum must be below maximum")
	}
	if cfg.Step < 0 {
		return nil, invalid(uniqueID, "step", utils.FormatFloat(cfg.Step, -1), "must be positive")
	}
	if !hass.ValidNumberMode(cfg.Mode) {
		return nil, invalid(uniqueID, "mode", cfg.Mode, "unknown display mode")
	}
	if !hass.ValidDeviceClass(hass.ComponentNumber, cfg.DeviceClass) {
		return nil, invalid(uniqueID, "device_class", cfg.DeviceClass, "unknown number device class")
	}

	b, err := newBase(hass.ComponentNumber, uniqueID, name, device, handler, "mdi:numeric", categoryConfig, opts)
	if err != nil {
		return nil, err
	}
	b.deviceClass = cfg.DeviceClass
	b.unit = cfg.Unit

	n := &Number{base: b, cfg: cfg}
	b.self, b.variant = n, n
	return n, nil
}

func (n *Number) Min() float64 { return n.cfg.Min }
func (n *Number) Max() float64 { return n.cfg.Max }

func (n *Number) OnMessage(ctx context.Context, topic string, payload []byte) error {
	return n.onMessage(ctx, topic, payload)
}

// Validate reports whether value lies within the configured range.
func (n *Number) Validate(value float64) error {
	if value < n.cfg.Min || value > n.cfg.Max {
		return invalid(n.uniqueID, "value", utils.FormatFloat(value, -1),
			fmt.Sprintf("outside [%s, %s]", utils.FormatFloat(n.cfg.Min, -1), utils.FormatFloat(n.cfg.Max, -1)))
	}
	return nil
}

func (n *Number) parse(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	value, err := utils.ParseFloat(trimmed)
	if err != nil {
		return "", invalid(n.uniqueID, "value", raw, "not a number")
	}
	if err := n.Validate(value); err != nil {
		return "", err
	}
	return trimmed, nil
}

func (n *Number) addDiscovery(cfg *hass.DiscoveryConfig) {
	lo, hi, step := n.cfg.Min, n.cfg.Max, n.cfg.Step
	cfg.Min, cfg.Max, cfg.Step = &lo, &hi, &step
	cfg.Mode = n.cfg.Mode
}

func (n *Number) encodeState(state string) (string, error)     { return n.parse(state) }
func (n *Number) decodeCommand(payload string) (string, error) { return n.parse(payload) }
