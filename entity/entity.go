// Package entity implements Home Assistant MQTT entities: each binds a
// unique id, a display name and a device to a topic namespace, publishes
// its discovery config and state, and applies validated commands through
// a CommandHandler.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kuretru/ha-minimqtt/entity/hass"
)

// DefaultTopicPrefix is prepended to state and command topics when no
// prefix is configured.
const DefaultTopicPrefix = "hamm"

const (
	categoryConfig     = "config"
	categoryDiagnostic = "diagnostic"
)

// Entity is the capability shared by every entity variant.
type Entity interface {
	UniqueID() string
	Name() string
	Component() hass.Component
	Device() *DeviceIdentifier

	StateTopic() string
	// CommandTopic is empty for entities without a command handler.
	CommandTopic() string
	DiscoveryTopic() string
	AvailabilityTopic() string
	Discovery() hass.DiscoveryConfig

	// Start publishes the discovery config, subscribes to the command topic
	// and marks the entity active. It may be called again after a reconnect.
	Start(ctx context.Context, client Client) error
	// SendCurrentState publishes the current state, retained, to StateTopic.
	SendCurrentState(ctx context.Context) error
	// Stop publishes an empty discovery config and unsubscribes. Stopping a
	// stopped entity is a no-op.
	Stop(ctx context.Context, client Client) error
	Active() bool
}

// CommandReceiver is implemented by entities that accept commands.
type CommandReceiver interface {
	Entity
	// OnMessage decodes and validates payload when topic is the entity's
	// command topic, then hands it to the CommandHandler. Failures are
	// reported to the error callback and returned; other topics are ignored.
	OnMessage(ctx context.Context, topic string, payload []byte) error
}

// ErrorFunc receives command and state failures of an entity.
type ErrorFunc func(e Entity, err error)

type options struct {
	topicPrefix     string
	discoveryPrefix string
	icon            string
	entityCategory  string
	origin          *hass.OriginInfo
	logger          *slog.Logger
	onError         ErrorFunc
}

// Option customises an entity.
type Option func(*options)

// WithTopicPrefix sets the prefix of state, command and availability topics.
func WithTopicPrefix(prefix string) Option {
	return func(o *options) { o.topicPrefix = strings.TrimSuffix(prefix, "/") }
}

// WithDiscoveryPrefix sets the prefix Home Assistant watches for discovery.
func WithDiscoveryPrefix(prefix string) Option {
	return func(o *options) { o.discoveryPrefix = strings.TrimSuffix(prefix, "/") }
}

// WithIcon overrides the default "mdi:" icon. A device class hides it.
func WithIcon(icon string) Option {
	return func(o *options) { o.icon = icon }
}

func WithEntityCategory(category string) Option {
	return func(o *options) { o.entityCategory = category }
}

func WithOrigin(origin hass.OriginInfo) Option {
	return func(o *options) { o.origin = &origin }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithErrorFunc replaces the default log-and-continue error callback.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(o *options) { o.onError = fn }
}

// variant is the type specific part of an entity.
type variant interface {
	addDiscovery(cfg *hass.DiscoveryConfig)
	// encodeState validates an outgoing state and returns the payload.
	encodeState(state string) (string, error)
	// decodeCommand validates an inbound command and returns what the
	// handler receives.
	decodeCommand(payload string) (string, error)
}

type base struct {
	component   hass.Component
	uniqueID    string
	name        string
	device      *DeviceIdentifier
	handler     CommandHandler
	deviceClass string
	unit        string
	opts        options

	self    Entity
	variant variant

	mu     sync.Mutex
	client Client
	active bool
	state  string
}

func newBase(component hass.Component, uniqueID, name string, device *DeviceIdentifier,
	handler CommandHandler, icon, category string, opts []Option) (*base, error) {
	if strings.TrimSpace(uniqueID) == "" {
		return nil, fmt.Errorf("entity: unique id must not be blank")
	}
	if strings.ContainsAny(uniqueID, "/+#") {
		return nil, fmt.Errorf("entity %s: unique id must not contain MQTT topic separators or wildcards", uniqueID)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("entity %s: name must not be blank", uniqueID)
	}
	if device == nil {
		return nil, fmt.Errorf("entity %s: device is required", uniqueID)
	}

	b := &base{
		component: component,
		uniqueID:  uniqueID,
		name:      name,
		device:    device,
		handler:   handler,
		opts: options{
			topicPrefix:     DefaultTopicPrefix,
			discoveryPrefix: hass.DefaultDiscoveryPrefix,
			icon:            icon,
			entityCategory:  category,
		},
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	if b.opts.logger == nil {
		b.opts.logger = slog.Default()
	}
	if b.opts.onError == nil {
		logger := b.opts.logger
		b.opts.onError = func(e Entity, err error) {
			logger.Warn("Entity: operation failed", "entity", e.UniqueID(), "err", err)
		}
	}
	return b, nil
}

func (b *base) UniqueID() string          { return b.uniqueID }
func (b *base) Name() string              { return b.name }
func (b *base) Component() hass.Component { return b.component }
func (b *base) Device() *DeviceIdentifier { return b.device }

func (b *base) topic(suffix string) string {
	return b.opts.topicPrefix + "/" + string(b.component) + "/" + b.uniqueID + "/" + suffix
}

func (b *base) StateTopic() string { return b.topic("state") }

func (b *base) CommandTopic() string {
	if b.handler == nil {
		return ""
	}
	return b.topic("set")
}

func (b *base) DiscoveryTopic() string {
	return b.opts.discoveryPrefix + "/" + string(b.component) + "/" + b.uniqueID + "/config"
}

func (b *base) AvailabilityTopic() string {
	return AvailabilityTopic(b.opts.topicPrefix, b.device)
}

func (b *base) Discovery() hass.DiscoveryConfig {
	cfg := hass.DiscoveryConfig{
		Name:              b.name,
		UniqueID:          b.uniqueID,
		Device:            b.device.DeviceInfo(),
		Origin:            b.opts.origin,
		StateTopic:        b.StateTopic(),
		CommandTopic:      b.CommandTopic(),
		AvailabilityTopic: b.AvailabilityTopic(),
		EntityCategory:    b.opts.entityCategory,
		Icon:              b.opts.icon,
		UnitOfMeasurement: b.unit,
	}
	if b.deviceClass != "" {
		cfg.Icon = ""
		cfg.DeviceClass = b.deviceClass
	}
	b.variant.addDiscovery(&cfg)
	return cfg
}

func (b *base) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *base) Start(ctx context.Context, client Client) error {
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("entity %s: start: %w", b.uniqueID, ErrNotConnected)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	if err := Register(ctx, client, b.self); err != nil {
		return err
	}
	if topic := b.CommandTopic(); topic != "" {
		if err := client.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("entity %s: subscribe %s: %w", b.uniqueID, topic, err)
		}
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()
	b.opts.logger.Info("Entity: started", "entity", b.uniqueID, "component", b.component)
	return nil
}

func (b *base) Stop(ctx context.Context, client Client) error {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return nil
	}
	if client == nil {
		client = b.client
	}
	b.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("entity %s: stop: %w", b.uniqueID, ErrNotConnected)
	}
	if err := Unregister(ctx, client, b.self); err != nil {
		return err
	}
	if topic := b.CommandTopic(); topic != "" {
		if err := client.Unsubscribe(ctx, topic); err != nil {
			b.opts.logger.Warn("Entity: unsubscribe failed", "entity", b.uniqueID, "topic", topic, "err", err)
		}
	}

	b.mu.Lock()
	b.active = false
	b.mu.Unlock()
	b.opts.logger.Info("Entity: removed", "entity", b.uniqueID)
	return nil
}

func (b *base) SendCurrentState(ctx context.Context) error {
	b.mu.Lock()
	client, active := b.client, b.active
	b.mu.Unlock()
	if !active || client == nil || !client.IsConnected() {
		return fmt.Errorf("entity %s: send state: %w", b.uniqueID, ErrNotConnected)
	}

	state, err := b.currentState()
	if err != nil {
		return err
	}
	payload, err := b.variant.encodeState(state)
	if err != nil {
		return err
	}
	if err := client.Publish(ctx, b.StateTopic(), []byte(payload), true); err != nil {
		return fmt.Errorf("entity %s: publish state: %w", b.uniqueID, err)
	}
	return nil
}

func (b *base) currentState() (state string, err error) {
	if b.handler == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.state, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Entity: b.uniqueID, Op: "current_state", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	state, err = b.handler.CurrentState()
	if err != nil {
		return "", &HandlerError{Entity: b.uniqueID, Op: "current_state", Err: err}
	}
	return state, nil
}

func (b *base) setLocalState(state string) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *base) onMessage(ctx context.Context, topic string, payload []byte) error {
	if b.handler == nil || topic != b.CommandTopic() {
		return nil
	}

	value, err := b.variant.decodeCommand(string(payload))
	if err != nil {
		b.opts.onError(b.self, err)
		return err
	}
	if err := b.handle(value); err != nil {
		b.opts.onError(b.self, err)
		return err
	}
	if err := b.SendCurrentState(ctx); err != nil {
		b.opts.onError(b.self, err)
		return err
	}
	return nil
}

func (b *base) handle(payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Entity: b.uniqueID, Op: "handle_command", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := b.handler.HandleCommand(payload); err != nil {
		return &HandlerError{Entity: b.uniqueID, Op: "handle_command", Err: err}
	}
	return nil
}
