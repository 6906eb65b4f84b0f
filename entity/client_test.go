package entity

import (
	"context"
	"errors"
	"time"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

// fakeClient records every call an entity makes.
type fakeClient struct {
	connected    bool
	publishErr   error
	published    []published
	subscribed   []string
	unsubscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true}
}

func (c *fakeClient) Connect(context.Context) error {
	c.connected = true
	return nil
}

func (c *fakeClient) Disconnect(context.Context) error {
	c.connected = false
	return nil
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	if !c.connected {
		return errors.New("not connected")
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{topic: topic, payload: string(payload), retain: retain})
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string) error {
	c.subscribed = append(c.subscribed, topic)
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	c.unsubscribed = append(c.unsubscribed, topic)
	return nil
}

func (c *fakeClient) Loop(context.Context, time.Duration) ([]Message, error) {
	return nil, nil
}

func (c *fakeClient) publishedTo(topic string) []published {
	var result []published
	for _, p := range c.published {
		if p.topic == topic {
			result = append(result, p)
		}
	}
	return result
}

func (c *fakeClient) reset() {
	c.published = nil
	c.subscribed = nil
	c.unsubscribed = nil
}

// recordingHandler keeps the last command as its state.
type recordingHandler struct {
	commands []string
	state    string
	err      error
	options  []string
}

func (h *recordingHandler) HandleCommand(payload string) error {
	h.commands = append(h.commands, payload)
	if h.err != nil {
		return h.err
	}
	h.state = payload
	return nil
}

func (h *recordingHandler) CurrentState() (string, error) { return h.state, nil }

func (h *recordingHandler) Options() []string { return h.options }
