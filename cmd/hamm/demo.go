package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/kuretru/ha-minimqtt/entity"
	"github.com/kuretru/ha-minimqtt/internal/color"
	"github.com/kuretru/ha-minimqtt/internal/utils"
)

// demo is a simulated rover exercising every entity type.
type demo struct {
	logger *slog.Logger
	start  time.Time

	servo   *entity.Number
	message *entity.Text
	mode    *entity.Select
	relay   *entity.Switch
	lights  *entity.Light
	running *entity.BinarySensor
	uptime  *entity.AnalogSensor
}

func newDemo(device *entity.DeviceIdentifier, logger *slog.Logger, opts ...entity.Option) (*demo, error) {
	d := &demo{logger: logger, start: time.Now()}
	var err error

	if d.servo, err = entity.NewNumber("servo", "Servo Angle", device, &servo{},
		entity.NumberConfig{Min: 0, Max: 180, Step: 1, Mode: "slider", Unit: "°"}, opts...); err != nil {
		return nil, err
	}
	if d.message, err = entity.NewText("message", "Message", device, &textBox{logger: logger},
		entity.TextConfig{MaxLength: 64}, opts...); err != nil {
		return nil, err
	}
	if d.mode, err = entity.NewSelect("mode", "Mode", device,
		newChoice("idle", "patrol", "dock"), opts...); err != nil {
		return nil, err
	}
	if d.relay, err = entity.NewSwitch("relay", "Relay", device, &relay{}, "switch", opts...); err != nil {
		return nil, err
	}
	strip := &memStrip{}
	if d.lights, err = entity.NewLight("lights", "Lights", device,
		entity.NewRGBLight(strip, []string{"candle", "police"}, strip.runEffect), opts...); err != nil {
		return nil, err
	}
	if d.running, err = entity.NewBinarySensor("running", "Running", device,
		entity.BinarySensorConfig{DeviceClass: "running", ExpireAfter: 120}, opts...); err != nil {
		return nil, err
	}
	if d.uptime, err = entity.NewAnalogSensor("uptime", "Uptime", device, entity.AnalogSensorConfig{
		DeviceClass: "duration",
		StateClass:  "total_increasing",
		Unit:        "s",
		Precision:   entity.Precision(0),
	}, opts...); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *demo) entities() []entity.Entity {
	return []entity.Entity{d.servo, d.message, d.mode, d.relay, d.lights, d.running, d.uptime}
}

// runSensors hands a sensor update to submit on every tick until ctx ends.
// submit runs it on the dispatcher loop.
func (d *demo) runSensors(ctx context.Context, interval time.Duration, submit func(func(context.Context)) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !submit(d.updateSensors) {
				d.logger.DebugContext(ctx, "Demo: sensor update dropped, dispatcher busy or offline")
			}
		}
	}
}

func (d *demo) updateSensors(ctx context.Context) {
	d.report(ctx, d.running.SetState(ctx, true))
	d.report(ctx, d.uptime.SetValue(ctx, math.Floor(time.Since(d.start).Seconds())))
}

func (d *demo) report(ctx context.Context, err error) {
	switch {
	case err == nil:
	case errors.Is(err, entity.ErrNotConnected):
		d.logger.DebugContext(ctx, "Demo: sensor update skipped while offline")
	default:
		d.logger.WarnContext(ctx, "Demo: sensor update failed", "err", err)
	}
}

type servo struct {
	mu    sync.Mutex
	angle int
}

func (s *servo) HandleCommand(payload string) error {
	value, err := utils.ParseFloat(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.angle = int(math.Round(value))
	s.mu.Unlock()
	return nil
}

func (s *servo) CurrentState() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.Itoa(s.angle), nil
}

type textBox struct {
	logger *slog.Logger
	mu     sync.Mutex
	text   string
}

func (t *textBox) HandleCommand(payload string) error {
	t.mu.Lock()
	t.text = payload
	t.mu.Unlock()
	t.logger.Info("Demo: message received", "text", payload)
	return nil
}

func (t *textBox) CurrentState() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text, nil
}

type choice struct {
	mu      sync.Mutex
	options []string
	current string
}

func newChoice(options ...string) *choice {
	return &choice{options: options, current: options[0]}
}

func (c *choice) Options() []string { return c.options }

func (c *choice) HandleCommand(payload string) error {
	c.mu.Lock()
	c.current = payload
	c.mu.Unlock()
	return nil
}

func (c *choice) CurrentState() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

type relay struct {
	mu sync.Mutex
	on bool
}

func (r *relay) HandleCommand(payload string) error {
	r.mu.Lock()
	r.on = payload == entity.StateOn
	r.mu.Unlock()
	return nil
}

func (r *relay) CurrentState() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.on {
		return entity.StateOn, nil
	}
	return entity.StateOff, nil
}

type memStrip struct {
	mu    sync.Mutex
	color color.RGB
}

func (s *memStrip) Color() color.RGB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

func (s *memStrip) SetColor(c color.RGB) error {
	s.mu.Lock()
	s.color = c
	s.mu.Unlock()
	return nil
}

func (s *memStrip) runEffect(effect string) error {
	switch effect {
	case "candle":
		return s.SetColor(color.KelvinToRGB(1800))
	case "police":
		return s.SetColor(color.RGB{B: 255})
	default:
		return fmt.Errorf("unknown effect %q", effect)
	}
}
