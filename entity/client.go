package entity

import (
	"context"
	"time"
)

// Message is an inbound publish delivered by a Client.
type Message struct {
	Topic   string
	Payload []byte
}

// Client is the capability an entity and the dispatcher need from an MQTT
// transport. Adapters live in package transport; entities never hold the
// network connection themselves, only the Client passed to Start.
type Client interface {
	// Connect establishes (or re-establishes) the broker session.
	Connect(ctx context.Context) error
	// Disconnect closes the session cleanly.
	Disconnect(ctx context.Context) error
	IsConnected() bool

	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error

	// Loop services the connection for at most timeout and returns the
	// messages received on subscribed topics, in delivery order.
	Loop(ctx context.Context, timeout time.Duration) ([]Message, error)
}
