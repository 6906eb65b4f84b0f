package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kuretru/ha-minimqtt/entity/hass"
	"github.com/kuretru/ha-minimqtt/internal/color"
)

// LightColor is the colour block of a JSON schema light command. Every
// component must be present.
type LightColor struct {
	R *int `json:"r"`
	G *int `json:"g"`
	B *int `json:"b"`
}

// RGB returns the colour once validated.
func (c LightColor) RGB() color.RGB {
	return color.RGB{R: deref(c.R), G: deref(c.G), B: deref(c.B)}
}

// LightCommand is the JSON schema command Home Assistant sends to a light.
type LightCommand struct {
	State      string      `json:"state,omitempty"`
	Brightness *int        `json:"brightness,omitempty"`
	Color      *LightColor `json:"color,omitempty"`
	ColorTemp  *int        `json:"color_temp,omitempty"`
	Effect     string      `json:"effect,omitempty"`
}

// LightState is the JSON schema state a light reports.
type LightState struct {
	State      string     `json:"state"`
	Brightness *int       `json:"brightness,omitempty"`
	ColorMode  string     `json:"color_mode,omitempty"`
	Color      *color.RGB `json:"color,omitempty"`
	ColorTemp  *int       `json:"color_temp,omitempty"`
	Effect     string     `json:"effect,omitempty"`
}

// ParseLightCommand decodes a JSON light command without validating it
// against a particular light.
func ParseLightCommand(payload string) (LightCommand, error) {
	var command LightCommand
	if err := json.Unmarshal([]byte(payload), &command); err != nil {
		return LightCommand{}, err
	}
	return command, nil
}

// ValidateColorModes enforces the combinations Home Assistant accepts:
// onoff and brightness must stand alone, and hs, xy and white are not
// supported by this library.
func ValidateColorModes(modes []string) error {
	if len(modes) == 0 {
		return fmt.Errorf("at least one color mode is required")
	}
	for _, mode := range modes {
		if !hass.ValidColorMode(mode) {
			return fmt.Errorf("unknown color mode %q", mode)
		}
		switch mode {
		case hass.ColorModeHS, hass.ColorModeXY, hass.ColorModeWhite:
			return fmt.Errorf("color mode %q is not supported", mode)
		case hass.ColorModeOnOff, hass.ColorModeBrightness:
			if len(modes) > 1 {
				return fmt.Errorf("color mode %q must be the only mode", mode)
			}
		}
	}
	return nil
}

func doesColor(modes []string) bool {
	return slices.ContainsFunc(modes, func(mode string) bool {
		return mode == hass.ColorModeRGB || mode == hass.ColorModeRGBW || mode == hass.ColorModeRGBWW
	})
}

// Light is a JSON schema light entity.
type Light struct {
	*base
	modes   []string
	effects []string
}

func NewLight(uniqueID, name string, device *DeviceIdentifier, handler LightHandler, opts ...Option) (*Light, error) {
	if handler == nil {
		return nil, fmt.Errorf("entity %s: light requires a handler", uniqueID)
	}
	modes := slices.Clone(handler.SupportedColorModes())
	if err := ValidateColorModes(modes); err != nil {
		return nil, invalid(uniqueID, "supported_color_modes", strings.Join(modes, ","), err.Error())
	}
	b, err := newBase(hass.ComponentLight, uniqueID, name, device, handler, "mdi:lightbulb", categoryConfig, opts)
	if err != nil {
		return nil, err
	}
	l := &Light{base: b, modes: modes, effects: slices.Clone(handler.Effects())}
	b.self, b.variant = l, l
	return l, nil
}

func (l *Light) OnMessage(ctx context.Context, topic string, payload []byte) error {
	return l.onMessage(ctx, topic, payload)
}

// Validate checks a decoded command against the light's capabilities.
func (l *Light) Validate(command LightCommand) error {
	if command == (LightCommand{}) {
		return invalid(l.uniqueID, "command", "", "empty command")
	}
	if command.State != "" && command.State != StateOn && command.State != StateOff {
		return invalid(l.uniqueID, "state", command.State, "must be ON or OFF")
	}
	if command.Brightness != nil {
		if slices.Equal(l.modes, []string{hass.ColorModeOnOff}) {
			return invalid(l.uniqueID, "brightness", "", "light is on/off only")
		}
		if *command.Brightness < 0 || *command.Brightness > 255 {
			return invalid(l.uniqueID, "brightness", strconv.Itoa(*command.Brightness), "outside [0, 255]")
		}
	}
	if command.Color != nil {
		if !doesColor(l.modes) {
			return invalid(l.uniqueID, "color", "", "light does not support color")
		}
		for _, component := range []*int{command.Color.R, command.Color.G, command.Color.B} {
			if component == nil {
				return invalid(l.uniqueID, "color", "", "r, g and b are required")
			}
			if *component < 0 || *component > 255 {
				return invalid(l.uniqueID, "color", strconv.Itoa(*component), "outside [0, 255]")
			}
		}
	}
	if command.ColorTemp != nil {
		if !slices.Contains(l.modes, hass.ColorModeColorTemp) {
			return invalid(l.uniqueID, "color_temp", "", "light does not support color temperature")
		}
		if *command.ColorTemp <= 0 {
			return invalid(l.uniqueID, "color_temp", strconv.Itoa(*command.ColorTemp), "must be positive mireds")
		}
	}
	if command.Effect != "" && !slices.Contains(l.effects, command.Effect) {
		return invalid(l.uniqueID, "effect", command.Effect, "unknown effect")
	}
	return nil
}

func (l *Light) addDiscovery(cfg *hass.DiscoveryConfig) {
	cfg.Schema = "json"
	cfg.SupportedColorModes = slices.Clone(l.modes)
	if !slices.Equal(l.modes, []string{hass.ColorModeOnOff}) {
		brightness := true
		cfg.Brightness = &brightness
	}
	if len(l.effects) > 0 {
		effect := true
		cfg.Effect = &effect
		cfg.EffectList = slices.Clone(l.effects)
	}
}

func (l *Light) encodeState(state string) (string, error) {
	var decoded LightState
	if err := json.Unmarshal([]byte(state), &decoded); err != nil {
		return "", invalid(l.uniqueID, "state", state, "not a JSON light state")
	}
	if decoded.State != StateOn && decoded.State != StateOff {
		return "", invalid(l.uniqueID, "state", decoded.State, "must be ON or OFF")
	}
	return state, nil
}

func (l *Light) decodeCommand(payload string) (string, error) {
	command, err := ParseLightCommand(payload)
	if err != nil {
		return "", invalid(l.uniqueID, "command", payload, "not a JSON light command")
	}
	if err := l.Validate(command); err != nil {
		return "", err
	}
	return payload, nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
