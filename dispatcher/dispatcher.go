// Package dispatcher drives one MQTT client for one device: it connects,
// registers every entity, polls the client on a fixed interval and routes
// inbound commands to the entity owning the topic. Link loss moves it to
// Reconnecting, from where it retries at a fixed delay until it succeeds
// or is stopped.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kuretru/ha-minimqtt/entity"
	"github.com/kuretru/ha-minimqtt/entity/hass"
	"github.com/kuretru/ha-minimqtt/internal/config"
	"github.com/kuretru/ha-minimqtt/internal/metrics"
	"github.com/kuretru/ha-minimqtt/internal/registry"
)

type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

var ErrRunning = errors.New("dispatcher already running")

const (
	shutdownTimeout = 5 * time.Second
	workQueueSize   = 32
)

type Config struct {
	LoopSleep      time.Duration
	LoopTimeout    time.Duration
	ReconnectDelay time.Duration
	// DiscoveryPrefix locates the Home Assistant status topic.
	DiscoveryPrefix string
	// AvailabilityTopic receives "online" on every connect and "offline" on
	// stop. Empty disables availability.
	AvailabilityTopic string
	// StateInterval republishes every state while connected. Zero disables.
	StateInterval time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// OnStateChange is called on the loop goroutine after every transition.
	OnStateChange func(from, to ConnectionState)
	// Sleep replaces the interruptible wait between steps.
	Sleep func(ctx context.Context, d time.Duration)
}

type Dispatcher struct {
	client   entity.Client
	cfg      Config
	logger   *slog.Logger
	registry *registry.Registry

	state      atomic.Int32
	running    atomic.Bool
	stopOnce   sync.Once
	stopCh     chan struct{}
	work       chan func(context.Context)
	lastStates time.Time
}

func New(client entity.Client, cfg Config) *Dispatcher {
	if cfg.LoopSleep <= 0 {
		cfg.LoopSleep = 100 * time.Millisecond
	}
	if cfg.LoopTimeout <= 0 {
		cfg.LoopTimeout = time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = hass.DefaultDiscoveryPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: registry.New(cfg.Logger),
		stopCh:   make(chan struct{}),
		work:     make(chan func(context.Context), workQueueSize),
	}
}

// Add registers entities before Run. Unique ids must not repeat.
func (d *Dispatcher) Add(entities ...entity.Entity) error {
	if d.running.Load() {
		return fmt.Errorf("Dispatcher: add: %w", ErrRunning)
	}
	for _, e := range entities {
		if err := d.registry.Add(e); err != nil {
			return err
		}
	}
	d.cfg.Metrics.SetEntities(d.registry.Len())
	return nil
}

func (d *Dispatcher) Entities() []entity.Entity {
	return d.registry.Entities()
}

func (d *Dispatcher) State() ConnectionState {
	return ConnectionState(d.state.Load())
}

// StatusTopic is where Home Assistant announces itself.
func (d *Dispatcher) StatusTopic() string {
	return d.cfg.DiscoveryPrefix + "/" + hass.StatusTopic
}

// Stop asks Run to return. It takes effect at the next loop boundary.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Submit queues fn to run on the loop goroutine during the next connected
// iteration, so sensor updates publish in step with command handling.
// It reports false when the queue is full.
func (d *Dispatcher) Submit(fn func(ctx context.Context)) bool {
	select {
	case d.work <- fn:
		return true
	default:
		return false
	}
}

// runWork runs what was queued before it started; work submitted by work
// waits for the next iteration.
func (d *Dispatcher) runWork(ctx context.Context) {
	for range len(d.work) {
		fn := <-d.work
		fn(ctx)
	}
}

func (d *Dispatcher) stopping() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) setState(to ConnectionState) {
	from := ConnectionState(d.state.Swap(int32(to)))
	if from == to {
		return
	}
	d.logger.Info("Dispatcher: state changed", "from", from, "to", to)
	d.cfg.Metrics.SetState(int(to))
	if d.cfg.OnStateChange != nil {
		d.cfg.OnStateChange(from, to)
	}
}

func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) {
	if d.cfg.Sleep != nil {
		d.cfg.Sleep(ctx, duration)
		return
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-d.stopCh:
	}
}

// Run blocks until Stop is called or ctx ends, then removes every entity
// from Home Assistant, publishes "offline" and disconnects.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer d.running.Store(false)

	d.setState(Connecting)
	for !d.stopping() && ctx.Err() == nil {
		switch d.State() {
		case Connecting:
			d.attempt(ctx, false)
		case Reconnecting:
			d.sleep(ctx, d.cfg.ReconnectDelay)
			if d.stopping() || ctx.Err() != nil {
				break
			}
			d.attempt(ctx, true)
		case Connected:
			d.poll(ctx)
			if d.State() == Connected {
				d.runWork(ctx)
			}
			d.refreshStates(ctx)
			d.sleep(ctx, d.cfg.LoopSleep)
		}
	}

	d.shutdown(ctx)
	d.logActivity()
	d.setState(Disconnected)
	return nil
}

func (d *Dispatcher) attempt(ctx context.Context, reconnect bool) {
	if err := d.connect(ctx); err != nil {
		d.logger.Warn("Dispatcher: connect failed, will retry",
			"err", err, "delay", d.cfg.ReconnectDelay)
		d.setState(Reconnecting)
		return
	}
	if reconnect {
		d.cfg.Metrics.Reconnected()
	}
	d.setState(Connected)
}

// connect brings the link up and publishes everything Home Assistant needs:
// availability, one discovery config per entity and the current states.
func (d *Dispatcher) connect(ctx context.Context) error {
	if err := d.client.Connect(ctx); err != nil {
		return err
	}
	if err := d.client.Subscribe(ctx, d.StatusTopic()); err != nil {
		return err
	}
	if err := d.publishAvailability(ctx, hass.PayloadOnline); err != nil {
		return err
	}
	for _, e := range d.registry.Entities() {
		if err := e.Start(ctx, d.client); err != nil {
			if entity.IsTransient(err) {
				return err
			}
			d.logger.Error("Dispatcher: start entity failed", "entity", e.UniqueID(), "err", err)
			continue
		}
	}
	d.sendStates(ctx)
	return nil
}

func (d *Dispatcher) sendStates(ctx context.Context) {
	d.lastStates = time.Now()
	for _, e := range d.registry.Entities() {
		if !e.Active() {
			continue
		}
		if err := e.SendCurrentState(ctx); err != nil {
			d.reportPublishError(e, err)
		}
	}
}

func (d *Dispatcher) refreshStates(ctx context.Context) {
	if d.cfg.StateInterval <= 0 || d.State() != Connected || d.stopping() || ctx.Err() != nil {
		return
	}
	if time.Since(d.lastStates) >= d.cfg.StateInterval {
		d.sendStates(ctx)
	}
}

func (d *Dispatcher) reportPublishError(e entity.Entity, err error) {
	if errors.Is(err, entity.ErrValidation) {
		d.logger.Debug("Dispatcher: state not published", "entity", e.UniqueID(), "err", err)
		return
	}
	d.cfg.Metrics.PublishFailed()
	d.logger.Warn("Dispatcher: publish state failed", "entity", e.UniqueID(), "err", err)
}

func (d *Dispatcher) publishAvailability(ctx context.Context, payload string) error {
	if d.cfg.AvailabilityTopic == "" {
		return nil
	}
	if err := d.client.Publish(ctx, d.cfg.AvailabilityTopic, []byte(payload), true); err != nil {
		d.cfg.Metrics.PublishFailed()
		return err
	}
	return nil
}

// poll runs one bounded client step and dispatches what it returned.
func (d *Dispatcher) poll(ctx context.Context) {
	start := time.Now()
	defer func() { d.cfg.Metrics.ObserveLoop(time.Since(start)) }()

	messages, err := d.client.Loop(ctx, d.cfg.LoopTimeout)
	for _, message := range messages {
		d.route(ctx, message)
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil || !d.client.IsConnected() {
		d.logger.Warn("Dispatcher: link lost", "err", err)
		d.setState(Reconnecting)
	}
}

func (d *Dispatcher) route(ctx context.Context, message entity.Message) {
	d.cfg.Metrics.Received()
	d.logger.Log(ctx, config.LevelTrace, "Dispatcher: message received",
		"topic", message.Topic, "payload", string(message.Payload))

	if message.Topic == d.StatusTopic() {
		d.onStatus(ctx, string(message.Payload))
		return
	}

	e, ok := d.registry.ByCommandTopic(message.Topic)
	if !ok {
		d.cfg.Metrics.Rejected(metrics.ReasonUnknownTopic)
		d.logger.Warn("Dispatcher: message received without hitting any route", "topic", message.Topic)
		return
	}
	receiver, ok := e.(entity.CommandReceiver)
	if !ok {
		d.cfg.Metrics.Rejected(metrics.ReasonUnknownTopic)
		return
	}

	d.registry.Touch(e.UniqueID())
	err := receiver.OnMessage(ctx, message.Topic, message.Payload)
	var handlerErr *entity.HandlerError
	switch {
	case err == nil:
		d.cfg.Metrics.Routed(string(e.Component()))
	case errors.Is(err, entity.ErrValidation):
		d.cfg.Metrics.Rejected(metrics.ReasonValidation)
	case errors.As(err, &handlerErr):
		d.cfg.Metrics.Rejected(metrics.ReasonHandler)
	default:
		d.cfg.Metrics.Rejected(metrics.ReasonPublish)
		d.cfg.Metrics.PublishFailed()
	}
}

// onStatus republishes discovery and state when Home Assistant comes back,
// since it may have lost non-retained state.
func (d *Dispatcher) onStatus(ctx context.Context, payload string) {
	if payload != hass.PayloadOnline {
		d.logger.Info("Dispatcher: Home Assistant status", "status", payload)
		return
	}
	d.logger.Info("Dispatcher: Home Assistant online, republishing discovery")
	if err := d.publishAvailability(ctx, hass.PayloadOnline); err != nil {
		d.logger.Warn("Dispatcher: publish availability failed", "err", err)
	}
	for _, e := range d.registry.Entities() {
		if !e.Active() {
			continue
		}
		if err := entity.Register(ctx, d.client, e); err != nil {
			d.cfg.Metrics.PublishFailed()
			d.logger.Warn("Dispatcher: republish discovery failed", "entity", e.UniqueID(), "err", err)
		}
	}
	d.sendStates(ctx)
}

func (d *Dispatcher) shutdown(ctx context.Context) {
	if !d.client.IsConnected() {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	for _, e := range d.registry.Entities() {
		if err := e.Stop(stopCtx, d.client); err != nil {
			d.logger.Warn("Dispatcher: stop entity failed", "entity", e.UniqueID(), "err", err)
		}
	}
	if err := d.publishAvailability(stopCtx, hass.PayloadOffline); err != nil {
		d.logger.Warn("Dispatcher: publish availability failed", "err", err)
	}
	if err := d.client.Disconnect(stopCtx); err != nil {
		d.logger.Warn("Dispatcher: disconnect failed", "err", err)
	}
	d.logger.Info("Dispatcher: stopped")
}

// logActivity reports how many commands each entity received while served.
func (d *Dispatcher) logActivity() {
	now := time.Now()
	for _, cell := range d.registry.Cells() {
		attrs := []any{
			"entity", cell.Entity.UniqueID(),
			"commands", cell.CommandCount,
			"served", now.Sub(cell.Registered).Round(time.Second),
		}
		if cell.CommandCount > 0 {
			attrs = append(attrs, "last_command_age", now.Sub(cell.LastCommand).Round(time.Millisecond))
		}
		d.logger.Info("Dispatcher: entity activity", attrs...)
	}
}
