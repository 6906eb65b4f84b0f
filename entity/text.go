package entity

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/kuretru/ha-minimqtt/entity/hass"
)

// MaxTextLength is the longest state Home Assistant accepts for a text entity.
const MaxTextLength = 255

// TextConfig bounds the accepted text. A zero MaxLength means MaxTextLength.
type TextConfig struct {
	MinLength int
	MaxLength int
	Mode      string
	Pattern   string
}

// Text is a free-form text entity.
type Text struct {
	*base
	cfg     TextConfig
	pattern *regexp.Regexp
}

func NewText(uniqueID, name string, device *DeviceIdentifier, handler CommandHandler,
	cfg TextConfig, opts ...Option) (*Text, error) {
	if handler == nil {
		return nil, fmt.Errorf("entity %s: text requires a handler", uniqueID)
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = MaxTextLength
	}
	if cfg.Mode == "" {
		cfg.Mode = hass.TextModeText
	}
	if cfg.MinLength < 0 || cfg.MaxLength > MaxTextLength || cfg.MinLength > cfg.MaxLength {
		return nil, invalid(uniqueID, "length", fmt.Sprintf("%d..%d", cfg.MinLength, cfg.MaxLength),
			fmt.Sprintf("must satisfy 0 <= min <= max <= %d", MaxTextLength))
	}
	if !hass.ValidTextMode(cfg.Mode) {
		return nil, invalid(uniqueID, "mode", cfg.Mode, "unknown text mode")
	}

	t := &Text{cfg: cfg}
	if cfg.Pattern != "" {
		pattern, err := regexp.Compile("^(?:" + cfg.Pattern + ")$")
		if err != nil {
			return nil, invalid(uniqueID, "pattern", cfg.Pattern, err.Error())
		}
		t.pattern = pattern
	}

	b, err := newBase(hass.ComponentText, uniqueID, name, device, handler, "mdi:form-textbox", categoryConfig, opts)
	if err != nil {
		return nil, err
	}
	t.base = b
	b.self, b.variant = t, t
	return t, nil
}

func (t *Text) OnMessage(ctx context.Context, topic string, payload []byte) error {
	return t.onMessage(ctx, topic, payload)
}

func (t *Text) check(value string) (string, error) {
	if !utf8.ValidString(value) {
		return "", invalid(t.uniqueID, "text", "", "not valid UTF-8")
	}
	length := utf8.RuneCountInString(value)
	if length < t.cfg.MinLength || length > t.cfg.MaxLength {
		return "", invalid(t.uniqueID, "length", strconv.Itoa(length),
			fmt.Sprintf("outside [%d, %d]", t.cfg.MinLength, t.cfg.MaxLength))
	}
	if t.pattern != nil && !t.pattern.MatchString(value) {
		return "", invalid(t.uniqueID, "text", value, "does not match pattern")
	}
	return value, nil
}

func (t *Text) addDiscovery(cfg *hass.DiscoveryConfig) {
	lo, hi := float64(t.cfg.MinLength), float64(t.cfg.MaxLength)
	cfg.Min, cfg.Max = &lo, &hi
	cfg.Mode = t.cfg.Mode
	cfg.Pattern = t.cfg.Pattern
}

func (t *Text) encodeState(state string) (string, error)     { return t.check(state) }
func (t *Text) decodeCommand(payload string) (string, error) { return t.check(payload) }
