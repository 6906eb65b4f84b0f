package entity

import (
	"context"
	"fmt"
	"slices"

	"github.com/kuretru/ha-minimqtt/entity/hass"
)

// Select offers a fixed list of options declared by its handler.
type Select struct {
	*base
	options []string
}

func NewSelect(uniqueID, name string, device *DeviceIdentifier, handler SelectHandler, opts ...Option) (*Select, error) {
	if handler == nil {
		return nil, fmt.Errorf("entity %s: select requires a handler", uniqueID)
	}
	options := slices.Clone(handler.Options())
	if len(options) == 0 {
		return nil, invalid(uniqueID, "options", "", "at least one option is required")
	}
	seen := make(map[string]struct{}, len(options))
	for _, option := range options {
		if _, ok := seen[option]; ok {
			return nil, invalid(uniqueID, "options", option, "duplicate option")
		}
		seen[option] = struct{}{}
	}

	b, err := newBase(hass.ComponentSelect, uniqueID, name, device, handler, "mdi:list-status", categoryConfig, opts)
	if err != nil {
		return nil, err
	}
	s := &Select{base: b, options: options}
	b.self, b.variant = s, s
	return s, nil
}

func (s *Select) Options() []string { return slices.Clone(s.options) }

func (s *Select) OnMessage(ctx context.Context, topic string, payload []byte) error {
	return s.onMessage(ctx, topic, payload)
}

func (s *Select) check(value string) (string, error) {
	if !slices.Contains(s.options, value) {
		return "", invalid(s.uniqueID, "option", value, "not one of the declared options")
	}
	return value, nil
}

func (s *Select) addDiscovery(cfg *hass.DiscoveryConfig) {
	cfg.Options = slices.Clone(s.options)
}

func (s *Select) encodeState(state string) (string, error)     { return s.check(state) }
func (s *Select) decodeCommand(payload string) (string, error) { return s.check(payload) }
