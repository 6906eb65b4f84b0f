// Package transport adapts MQTT client libraries to entity.Client. Inbound
// publishes are queued by the library's goroutines and handed to the poll
// loop by Loop, so entity callbacks only ever run on the loop goroutine.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/kuretru/ha-minimqtt/entity"
	"github.com/kuretru/ha-minimqtt/internal/config"
)

const defaultInboxSize = 256

var errLinkLost = errors.New("link lost")

// Will is published by the broker when the client vanishes.
type Will struct {
	Topic   string
	Payload []byte
	Retain  bool
}

type Options struct {
	Server         *url.URL
	ClientID       string
	Username       string
	Password       string
	Keepalive      uint16
	ConnectTimeout time.Duration
	Will           *Will
	InboxSize      int
	Logger         *slog.Logger
}

func (o *Options) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Keepalive == 0 {
		o.Keepalive = 30
	}
	if o.InboxSize <= 0 {
		o.InboxSize = defaultInboxSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// New builds the client selected by cfg.Transport.
func New(cfg *config.Config, will *Will, logger *slog.Logger) (entity.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transport config is nil")
	}

	opts := Options{
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		Keepalive:      cfg.MQTT.Keepalive,
		ConnectTimeout: 2 * cfg.Loop.ReconnectDelayDuration(),
		Will:           will,
		Logger:         logger,
	}
	switch cfg.Transport {
	case config.TransportMQTT5:
		opts.Server = cfg.MQTT.URL("mqtt")
		return NewMQTT5(opts), nil
	case config.TransportMQTT311:
		opts.Server = cfg.MQTT.URL("tcp")
		return NewMQTT311(opts), nil
	default:
		return nil, fmt.Errorf("unknown transport type %v", cfg.Transport)
	}
}

type inbox struct {
	ch     chan entity.Message
	logger *slog.Logger
}

func newInbox(size int, logger *slog.Logger) *inbox {
	return &inbox{ch: make(chan entity.Message, size), logger: logger}
}

// push never blocks the library's network goroutine.
func (i *inbox) push(topic string, payload []byte) {
	message := entity.Message{Topic: topic, Payload: bytes.Clone(payload)}
	select {
	case i.ch <- message:
	default:
		i.logger.Warn("Transport: inbox full, message dropped", "topic", topic)
	}
}

// drain waits up to timeout for a first message and then takes whatever
// else is already queued.
func (i *inbox) drain(ctx context.Context, timeout time.Duration) []entity.Message {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var messages []entity.Message
	select {
	case message := <-i.ch:
		messages = append(messages, message)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
	for {
		select {
		case message := <-i.ch:
			messages = append(messages, message)
		default:
			return messages
		}
	}
}

// pending takes queued messages without waiting.
func (i *inbox) pending() []entity.Message {
	var messages []entity.Message
	for {
		select {
		case message := <-i.ch:
			messages = append(messages, message)
		default:
			return messages
		}
	}
}

func notConnected(op string) error {
	return fmt.Errorf("mqtt %s: %w", op, entity.ErrNotConnected)
}
