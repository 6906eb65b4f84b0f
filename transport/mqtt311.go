package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kuretru/ha-minimqtt/entity"
)

// MQTT311Client talks MQTT v3.1.1 through paho.mqtt.golang with the
// library's auto reconnect switched off.
type MQTT311Client struct {
	opts      Options
	inbox     *inbox
	connected atomic.Bool
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTT311(opts Options) *MQTT311Client {
	opts.withDefaults()
	return &MQTT311Client{
		opts:      opts,
		inbox:     newInbox(opts.InboxSize, opts.Logger),
		newClient: mqtt.NewClient,
	}
}

func (c *MQTT311Client) clientOptions() *mqtt.ClientOptions {
	logger := c.opts.Logger
	options := mqtt.NewClientOptions().
		AddBroker(c.opts.Server.String()).
		SetClientID(c.opts.ClientID).
		SetUsername(c.opts.Username).
		SetPassword(c.opts.Password).
		SetKeepAlive(time.Duration(c.opts.Keepalive) * time.Second).
		SetConnectTimeout(c.opts.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOnConnectHandler(func(client mqtt.Client) {
			if !c.current(client) {
				return
			}
			c.connected.Store(true)
			logger.Info("Transport.MQTT311: connected to server", "server", c.opts.Server.String())
		}).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			if !c.current(client) {
				return
			}
			c.connected.Store(false)
			logger.Warn("Transport.MQTT311: connection lost", "err", err)
		}).
		SetDefaultPublishHandler(func(_ mqtt.Client, message mqtt.Message) {
			c.inbox.push(message.Topic(), message.Payload())
		})
	if will := c.opts.Will; will != nil {
		options.SetBinaryWill(will.Topic, will.Payload, 1, will.Retain)
	}
	return options
}

func (c *MQTT311Client) Connect(ctx context.Context) error {
	c.closeClient()

	client := c.newClient(c.clientOptions())
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	if err := c.wait(ctx, client.Connect(), "connect"); err != nil {
		// an abandoned attempt may still complete; close it so the broker
		// never holds two sessions for one client id
		c.closeClient()
		return err
	}
	c.connected.Store(true)
	return nil
}

// current reports whether callbacks from client still concern this
// adapter. Clients replaced by a later Connect are ignored.
func (c *MQTT311Client) current(client mqtt.Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client == client
}

func (c *MQTT311Client) closeClient() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	c.connected.Store(false)
	if client != nil {
		client.Disconnect(250)
	}
}

func (c *MQTT311Client) Disconnect(context.Context) error {
	c.closeClient()
	c.opts.Logger.Info("Transport.MQTT311: stopped")
	return nil
}

func (c *MQTT311Client) IsConnected() bool {
	return c.connected.Load()
}

// wait blocks until the token completes, ConnectTimeout passes or ctx ends.
func (c *MQTT311Client) wait(ctx context.Context, token mqtt.Token, op string) error {
	timer := time.NewTimer(c.opts.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return &entity.ConnectionError{Op: op, Err: fmt.Errorf("timed out after %v", c.opts.ConnectTimeout)}
	case <-ctx.Done():
		return &entity.ConnectionError{Op: op, Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		return &entity.ConnectionError{Op: op, Err: err}
	}
	return nil
}

func (c *MQTT311Client) active(op string) (mqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || !c.connected.Load() {
		return nil, notConnected(op)
	}
	return c.client, nil
}

func (c *MQTT311Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	client, err := c.active("publish")
	if err != nil {
		return err
	}
	return c.wait(ctx, client.Publish(topic, 1, retain, payload), "publish "+topic)
}

func (c *MQTT311Client) Subscribe(ctx context.Context, topic string) error {
	client, err := c.active("subscribe")
	if err != nil {
		return err
	}
	// a nil callback routes messages to the default publish handler
	if err := c.wait(ctx, client.Subscribe(topic, 1, nil), "subscribe "+topic); err != nil {
		return err
	}
	c.opts.Logger.Debug("Transport.MQTT311: subscribed to", "topic", topic)
	return nil
}

func (c *MQTT311Client) Unsubscribe(ctx context.Context, topic string) error {
	client, err := c.active("unsubscribe")
	if err != nil {
		return err
	}
	return c.wait(ctx, client.Unsubscribe(topic), "unsubscribe "+topic)
}

func (c *MQTT311Client) Loop(ctx context.Context, timeout time.Duration) ([]entity.Message, error) {
	if !c.IsConnected() {
		return c.inbox.pending(), &entity.ConnectionError{Op: "loop", Err: errLinkLost}
	}
	return c.inbox.drain(ctx, timeout), nil
}

func (c *MQTT311Client) String() string {
	return fmt.Sprintf("mqtt311(%s)", c.opts.Server)
}
