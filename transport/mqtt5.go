package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/kuretru/ha-minimqtt/entity"
)

// MQTT5Client talks MQTT v5 through an autopaho connection manager. Each
// Connect builds a fresh manager; reconnect policy stays with the caller.
type MQTT5Client struct {
	opts          Options
	inbox         *inbox
	connected     atomic.Bool
	newConnection func(context.Context, autopaho.ClientConfig) (*autopaho.ConnectionManager, error)

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

func NewMQTT5(opts Options) *MQTT5Client {
	opts.withDefaults()
	return &MQTT5Client{
		opts:          opts,
		inbox:         newInbox(opts.InboxSize, opts.Logger),
		newConnection: autopaho.NewConnection,
	}
}

func (c *MQTT5Client) clientConfig() autopaho.ClientConfig {
	logger := c.opts.Logger
	router := paho.NewStandardRouter()
	router.DefaultHandler(func(publish *paho.Publish) {
		c.inbox.push(publish.Topic, publish.Payload)
	})

	clientConfig := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{c.opts.Server},
		KeepAlive:       c.opts.Keepalive,
		ConnectUsername: c.opts.Username,
		ConnectPassword: []byte(c.opts.Password),
		// subscriptions are re-established by the entities on every connect
		CleanStartOnInitialConnection: true,
		ConnectTimeout:                c.opts.ConnectTimeout,
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			c.connected.Store(true)
			logger.Info("Transport.MQTT5: connected to server", "server", c.opts.Server.String())
		},
		// the dispatcher owns reconnects, so autopaho must not retry on its own
		OnConnectionDown: func() bool {
			c.connected.Store(false)
			logger.Warn("Transport.MQTT5: connection down")
			return false
		},
		OnConnectError: func(err error) {
			logger.Error("Transport.MQTT5: connect failed", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(publishReceived paho.PublishReceived) (bool, error) {
					router.Route(publishReceived.Packet.Packet())
					return true, nil
				}},
			OnClientError: func(err error) {
				c.connected.Store(false)
				logger.Warn("Transport.MQTT5: client error", "err", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.connected.Store(false)
				if d.Properties != nil && d.Properties.ReasonString != "" {
					logger.Error("Transport.MQTT5: server requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					logger.Error("Transport.MQTT5: server requested disconnect", "reasonCode", d.ReasonCode)
				}
			},
		},
	}
	if will := c.opts.Will; will != nil {
		clientConfig.WillMessage = &paho.WillMessage{
			Topic:   will.Topic,
			Payload: will.Payload,
			QoS:     1,
			Retain:  will.Retain,
		}
	}
	if c.opts.Server.Scheme == "mqtts" || c.opts.Server.Scheme == "ssl" {
		clientConfig.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return clientConfig
}

func (c *MQTT5Client) Connect(ctx context.Context) error {
	c.closeManager(ctx)

	// the manager outlives ctx so a cancelled caller can still unregister
	// and publish offline before Disconnect
	cm, err := c.newConnection(context.WithoutCancel(ctx), c.clientConfig())
	if err != nil {
		return &entity.ConnectionError{Op: "connect", Err: err}
	}
	awaitCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(awaitCtx); err != nil {
		stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
		defer stop()
		_ = cm.Disconnect(stopCtx)
		return &entity.ConnectionError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()
	c.connected.Store(true)
	return nil
}

func (c *MQTT5Client) closeManager(ctx context.Context) {
	c.mu.Lock()
	cm := c.cm
	c.cm = nil
	c.mu.Unlock()
	c.connected.Store(false)
	if cm != nil {
		if err := cm.Disconnect(ctx); err != nil {
			c.opts.Logger.Debug("Transport.MQTT5: disconnect previous connection failed", "err", err)
		}
	}
}

func (c *MQTT5Client) Disconnect(ctx context.Context) error {
	c.closeManager(ctx)
	c.opts.Logger.Info("Transport.MQTT5: stopped")
	return nil
}

func (c *MQTT5Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *MQTT5Client) manager(op string) (*autopaho.ConnectionManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cm == nil || !c.connected.Load() {
		return nil, notConnected(op)
	}
	return c.cm, nil
}

func (c *MQTT5Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	cm, err := c.manager("publish")
	if err != nil {
		return err
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  retain,
	}); err != nil {
		return &entity.ConnectionError{Op: "publish " + topic, Err: err}
	}
	return nil
}

func (c *MQTT5Client) Subscribe(ctx context.Context, topic string) error {
	cm, err := c.manager("subscribe")
	if err != nil {
		return err
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: 1},
		},
	}); err != nil {
		return &entity.ConnectionError{Op: "subscribe " + topic, Err: err}
	}
	c.opts.Logger.Debug("Transport.MQTT5: subscribed to", "topic", topic)
	return nil
}

func (c *MQTT5Client) Unsubscribe(ctx context.Context, topic string) error {
	cm, err := c.manager("unsubscribe")
	if err != nil {
		return err
	}
	if _, err := cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}}); err != nil {
		return &entity.ConnectionError{Op: "unsubscribe " + topic, Err: err}
	}
	return nil
}

// Loop returns the messages received within timeout. A lost link is
// reported as a ConnectionError after handing back anything still queued.
func (c *MQTT5Client) Loop(ctx context.Context, timeout time.Duration) ([]entity.Message, error) {
	if !c.IsConnected() {
		return c.inbox.pending(), &entity.ConnectionError{Op: "loop", Err: errLinkLost}
	}
	return c.inbox.drain(ctx, timeout), nil
}

func (c *MQTT5Client) String() string {
	return fmt.Sprintf("mqtt5(%s)", c.opts.Server)
}
