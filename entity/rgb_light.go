package entity

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/kuretru/ha-minimqtt/entity/hass"
	"github.com/kuretru/ha-minimqtt/internal/color"
)

// RGBStrip is the minimal contract of an RGB LED driver.
type RGBStrip interface {
	Color() color.RGB
	SetColor(c color.RGB) error
}

// RGBLight is a LightHandler for RGB strips. Brightness and colour
// temperature are emulated by scaling and converting the strip colour.
type RGBLight struct {
	strip   RGBStrip
	effects []string
	run     func(effect string) error

	mu     sync.Mutex
	effect string
}

// NewRGBLight wraps strip. run executes an effect and may be nil when
// effects is empty.
func NewRGBLight(strip RGBStrip, effects []string, run func(effect string) error) *RGBLight {
	return &RGBLight{strip: strip, effects: slices.Clone(effects), run: run}
}

func (h *RGBLight) SupportedColorModes() []string {
	return []string{hass.ColorModeRGB, hass.ColorModeColorTemp}
}

func (h *RGBLight) Effects() []string { return slices.Clone(h.effects) }

func (h *RGBLight) isOn() bool {
	current := h.strip.Color()
	return current != color.Black && current.Brightness() != 0
}

// HandleCommand applies the first of effect, color, color_temp, brightness
// and state present in the command.
func (h *RGBLight) HandleCommand(payload string) error {
	command, err := ParseLightCommand(payload)
	if err != nil {
		return fmt.Errorf("parse light command: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case command.Effect != "" && len(h.effects) > 0:
		if h.run == nil {
			return fmt.Errorf("no effect runner for %q", command.Effect)
		}
		h.effect = command.Effect
		return h.run(command.Effect)
	case command.Color != nil:
		h.effect = ""
		return h.strip.SetColor(command.Color.RGB().Clamp())
	case command.ColorTemp != nil:
		h.effect = ""
		return h.strip.SetColor(color.KelvinToRGB(color.MiredsToKelvin(*command.ColorTemp)))
	case command.Brightness != nil:
		h.effect = ""
		base := color.White
		if h.isOn() {
			base = h.strip.Color()
			// rescale from full brightness so repeated dimming is not cumulative
			if peak := max(base.R, base.G, base.B); peak > 0 {
				base = color.RGB{R: base.R * 255 / peak, G: base.G * 255 / peak, B: base.B * 255 / peak}
			}
		}
		return h.strip.SetColor(base.Scale(*command.Brightness))
	case command.State == StateOn:
		if h.isOn() {
			return nil
		}
		return h.strip.SetColor(color.White)
	case command.State == StateOff:
		h.effect = ""
		return h.strip.SetColor(color.Black)
	}
	return nil
}

func (h *RGBLight) CurrentState() (string, error) {
	h.mu.Lock()
	effect := h.effect
	h.mu.Unlock()

	var state LightState
	if effect != "" {
		state = LightState{State: StateOn, Effect: effect}
	} else {
		current := h.strip.Color()
		brightness := current.Brightness()
		mireds := current.Mireds()
		state = LightState{
			State:     StateOff,
			ColorMode: hass.ColorModeRGB,
			Color:     &current,
			ColorTemp: &mireds,
		}
		if h.isOn() {
			state.State = StateOn
		}
		state.Brightness = &brightness
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
