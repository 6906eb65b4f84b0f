package entity

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/kuretru/ha-minimqtt/entity/hass"
	"github.com/kuretru/ha-minimqtt/internal/utils"
)

var errReadOnly = errors.New("sensor does not accept commands")

// BinarySensorConfig configures the on/off literals and timing of a
// BinarySensor. Empty literals default to ON and OFF.
type BinarySensorConfig struct {
	DeviceClass string
	PayloadOn   string
	PayloadOff  string
	// ExpireAfter and OffDelay are seconds; zero disables them.
	ExpireAfter int
	OffDelay    int
}

// BinarySensor reports a boolean, tracked locally and set by the
// application.
type BinarySensor struct {
	*base
	cfg BinarySensorConfig
}

func NewBinarySensor(uniqueID, name string, device *DeviceIdentifier, cfg BinarySensorConfig,
	opts ...Option) (*BinarySensor, error) {
	if cfg.PayloadOn == "" {
		cfg.PayloadOn = StateOn
	}
	if cfg.PayloadOff == "" {
		cfg.PayloadOff = StateOff
	}
	if cfg.PayloadOn == cfg.PayloadOff {
		return nil, invalid(uniqueID, "payload_on", cfg.PayloadOn, "must differ from payload_off")
	}
	if !hass.ValidDeviceClass(hass.ComponentBinarySensor, cfg.DeviceClass) {
		return nil, invalid(uniqueID, "device_class", cfg.DeviceClass, "unknown binary sensor device class")
	}
	if cfg.ExpireAfter < 0 {
		return nil, invalid(uniqueID, "expire_after", strconv.Itoa(cfg.ExpireAfter), "must not be negative")
	}
	if cfg.OffDelay < 0 {
		return nil, invalid(uniqueID, "off_delay", strconv.Itoa(cfg.OffDelay), "must not be negative")
	}

	b, err := newBase(hass.ComponentBinarySensor, uniqueID, name, device, nil, "mdi:door", categoryDiagnostic, opts)
	if err != nil {
		return nil, err
	}
	b.deviceClass = cfg.DeviceClass
	b.state = cfg.PayloadOff

	s := &BinarySensor{base: b, cfg: cfg}
	b.self, b.variant = s, s
	return s, nil
}

// Encode maps a boolean to the configured literal.
func (s *BinarySensor) Encode(on bool) string {
	if on {
		return s.cfg.PayloadOn
	}
	return s.cfg.PayloadOff
}

// Decode maps a literal (case-insensitively) back to a boolean.
func (s *BinarySensor) Decode(payload string) (bool, error) {
	switch {
	case strings.EqualFold(payload, s.cfg.PayloadOn):
		return true, nil
	case strings.EqualFold(payload, s.cfg.PayloadOff):
		return false, nil
	default:
		return false, invalid(s.uniqueID, "state", payload,
			"must be "+s.cfg.PayloadOn+" or "+s.cfg.PayloadOff)
	}
}

// State is the locally tracked value.
func (s *BinarySensor) State() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == s.cfg.PayloadOn
}

// SetState records the value and publishes it when the sensor is active.
// The value is kept even if publishing fails.
func (s *BinarySensor) SetState(ctx context.Context, on bool) error {
	s.setLocalState(s.Encode(on))
	return s.SendCurrentState(ctx)
}

func (s *BinarySensor) addDiscovery(cfg *hass.DiscoveryConfig) {
	cfg.PayloadOn = s.cfg.PayloadOn
	cfg.PayloadOff = s.cfg.PayloadOff
	cfg.ExpireAfter = s.cfg.ExpireAfter
	cfg.OffDelay = s.cfg.OffDelay
}

func (s *BinarySensor) encodeState(state string) (string, error) {
	on, err := s.Decode(state)
	if err != nil {
		return "", err
	}
	return s.Encode(on), nil
}

func (s *BinarySensor) decodeCommand(string) (string, error) { return "", errReadOnly }

// AnalogSensorConfig configures an AnalogSensor. A nil Precision publishes
// the shortest exact representation.
type AnalogSensorConfig struct {
	DeviceClass string
	StateClass  string
	Unit        string
	Precision   *int
	ExpireAfter int
}

// Precision is a helper for AnalogSensorConfig.Precision.
func Precision(decimals int) *int { return &decimals }

// AnalogSensor reports a number set by the application.
type AnalogSensor struct {
	*base
	cfg AnalogSensorConfig
}

func NewAnalogSensor(uniqueID, name string, device *DeviceIdentifier, cfg AnalogSensorConfig,
	opts ...Option) (*AnalogSensor, error) {
	if !hass.ValidDeviceClass(hass.ComponentSensor, cfg.DeviceClass) {
		return nil, invalid(uniqueID, "device_class", cfg.DeviceClass, "unknown sensor device class")
	}
	if !hass.ValidStateClass(cfg.StateClass) {
		return nil, invalid(uniqueID, "state_class", cfg.StateClass, "unknown state class")
	}
	if cfg.Precision != nil && *cfg.Precision < 0 {
		return nil, invalid(uniqueID, "precision", strconv.Itoa(*cfg.Precision), "must not be negative")
	}
	if cfg.ExpireAfter < 0 {
		return nil, invalid(uniqueID, "expire_after", strconv.Itoa(cfg.ExpireAfter), "must not be negative")
	}

	b, err := newBase(hass.ComponentSensor, uniqueID, name, device, nil, "mdi:gauge", categoryDiagnostic, opts)
	if err != nil {
		return nil, err
	}
	b.deviceClass = cfg.DeviceClass
	b.unit = cfg.Unit

	s := &AnalogSensor{base: b, cfg: cfg}
	b.self, b.variant = s, s
	return s, nil
}

// Format renders value with the configured precision.
func (s *AnalogSensor) Format(value float64) string {
	if s.cfg.Precision == nil {
		return utils.FormatFloat(value, -1)
	}
	return utils.FormatFloat(value, *s.cfg.Precision)
}

// SetValue records the value and publishes it when the sensor is active.
func (s *AnalogSensor) SetValue(ctx context.Context, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return invalid(s.uniqueID, "value", strconv.FormatFloat(value, 'f', -1, 64), "not a finite number")
	}
	s.setLocalState(s.Format(value))
	return s.SendCurrentState(ctx)
}

func (s *AnalogSensor) addDiscovery(cfg *hass.DiscoveryConfig) {
	cfg.StateClass = s.cfg.StateClass
	cfg.ExpireAfter = s.cfg.ExpireAfter
	cfg.SuggestedPrecision = s.cfg.Precision
}

func (s *AnalogSensor) encodeState(state string) (string, error) {
	if state == "" {
		return "", invalid(s.uniqueID, "value", "", "no value has been set")
	}
	if _, err := utils.ParseFloat(state); err != nil {
		return "", invalid(s.uniqueID, "value", state, "not a number")
	}
	return state, nil
}

func (s *AnalogSensor) decodeCommand(string) (string, error) { return "", errReadOnly }
