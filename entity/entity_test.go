package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice(t *testing.T) *DeviceIdentifier {
	t.Helper()
	device, err := NewDeviceIdentifier("Kobots", "tests", "test-host")
	require.NoError(t, err)
	return device
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeJSON(t *testing.T, payload string) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	return decoded
}

func newServo(t *testing.T, handler CommandHandler, opts ...Option) *Number {
	t.Helper()
	opts = append([]Option{WithTopicPrefix("kobots"), WithLogger(quietLogger())}, opts...)
	n, err := NewNumber("servo", "Servo", testDevice(t), handler,
		NumberConfig{Min: 0, Max: 180, Step: 1}, opts...)
	require.NoError(t, err)
	return n
}

func TestNewDeviceIdentifier(t *testing.T) {
	_, err := NewDeviceIdentifier(" ", "model", "id")
	assert.Error(t, err)
	_, err = NewDeviceIdentifier("maker", "", "id")
	assert.Error(t, err)

	device, err := NewDeviceIdentifier("maker", "model", "")
	require.NoError(t, err)
	assert.NotEmpty(t, device.Identifier(), "identifier defaults to the host name")

	a := testDevice(t)
	b := testDevice(t)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(device))

	elsewhere, err := NewDeviceIdentifier("Kobots", "tests", "other-host")
	require.NoError(t, err)
	assert.True(t, a.Equal(elsewhere), "equality ignores the identifier")
	otherModel, err := NewDeviceIdentifier("Kobots", "rover", "test-host")
	require.NoError(t, err)
	assert.False(t, a.Equal(otherModel))
	assert.False(t, a.Equal(nil))
}

func TestEntity_Topics(t *testing.T) {
	n := newServo(t, &recordingHandler{})

	assert.Equal(t, "kobots/number/servo/state", n.StateTopic())
	assert.Equal(t, "kobots/number/servo/set", n.CommandTopic())
	assert.Equal(t, "homeassistant/number/servo/config", n.DiscoveryTopic())
	assert.Equal(t, "kobots/test-host/availability", n.AvailabilityTopic())

	custom := newServo(t, &recordingHandler{}, WithDiscoveryPrefix("ha/"))
	assert.Equal(t, "ha/number/servo/config", custom.DiscoveryTopic())
}

func TestEntity_RejectsBadIdentity(t *testing.T) {
	device := testDevice(t)
	handler := &recordingHandler{}

	_, err := NewNumber("", "Servo", device, handler, DefaultNumberConfig())
	assert.Error(t, err)
	_, err = NewNumber("servo/1", "Servo", device, handler, DefaultNumberConfig())
	assert.Error(t, err)
	_, err = NewNumber("servo", " ", device, handler, DefaultNumberConfig())
	assert.Error(t, err)
	_, err = NewNumber("servo", "Servo", nil, handler, DefaultNumberConfig())
	assert.Error(t, err)
}

func TestEntity_StartRequiresConnection(t *testing.T) {
	n := newServo(t, &recordingHandler{})

	client := newFakeClient()
	client.connected = false
	err := n.Start(context.Background(), client)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, n.Active())
	assert.Empty(t, client.published)

	assert.ErrorIs(t, n.Start(context.Background(), nil), ErrNotConnected)
}

func TestEntity_StartPublishesDiscoveryAndSubscribes(t *testing.T) {
	n := newServo(t, &recordingHandler{})
	client := newFakeClient()

	require.NoError(t, n.Start(context.Background(), client))
	assert.True(t, n.Active())

	require.Len(t, client.published, 1)
	disco := client.published[0]
	assert.Equal(t, "homeassistant/number/servo/config", disco.topic)
	assert.True(t, disco.retain)

	payload := decodeJSON(t, disco.payload)
	assert.Equal(t, "Servo", payload["name"])
	assert.Equal(t, "servo", payload["unique_id"])
	assert.Equal(t, "kobots/number/servo/state", payload["state_topic"])
	assert.Equal(t, "kobots/number/servo/set", payload["command_topic"])
	assert.Equal(t, "kobots/test-host/availability", payload["availability_topic"])
	assert.Equal(t, "config", payload["entity_category"])
	device := payload["device"].(map[string]any)
	assert.Equal(t, "Kobots", device["manufacturer"])
	assert.Equal(t, "tests", device["model"])

	assert.Equal(t, []string{"kobots/number/servo/set"}, client.subscribed)
}

func TestEntity_StopUnregistersOnce(t *testing.T) {
	n := newServo(t, &recordingHandler{})
	client := newFakeClient()
	ctx := context.Background()

	// stopping an entity that never started does nothing
	require.NoError(t, n.Stop(ctx, client))
	assert.Empty(t, client.published)

	require.NoError(t, n.Start(ctx, client))
	require.NoError(t, n.Stop(ctx, client))
	assert.False(t, n.Active())

	discovery := client.publishedTo(n.DiscoveryTopic())
	require.Len(t, discovery, 2)
	assert.NotEmpty(t, discovery[0].payload)
	assert.Empty(t, discovery[1].payload)
	assert.True(t, discovery[1].retain)
	assert.Equal(t, []string{n.CommandTopic()}, client.unsubscribed)

	require.NoError(t, n.Stop(ctx, client))
	assert.Len(t, client.publishedTo(n.DiscoveryTopic()), 2)
}

func TestEntity_StopUsesStartClient(t *testing.T) {
	n := newServo(t, &recordingHandler{})
	client := newFakeClient()
	ctx := context.Background()

	require.NoError(t, n.Start(ctx, client))
	require.NoError(t, n.Stop(ctx, nil))
	assert.Len(t, client.publishedTo(n.DiscoveryTopic()), 2)
}

func TestEntity_SendCurrentState(t *testing.T) {
	handler := &recordingHandler{state: "42"}
	n := newServo(t, handler)
	client := newFakeClient()
	ctx := context.Background()

	assert.ErrorIs(t, n.SendCurrentState(ctx), ErrNotConnected)

	require.NoError(t, n.Start(ctx, client))
	client.reset()
	require.NoError(t, n.SendCurrentState(ctx))

	require.Len(t, client.published, 1)
	assert.Equal(t, published{topic: "kobots/number/servo/state", payload: "42", retain: true}, client.published[0])
}

func TestNumber_OnMessage(t *testing.T) {
	handler := &recordingHandler{}
	var reported []error
	n := newServo(t, handler, WithErrorFunc(func(_ Entity, err error) {
		reported = append(reported, err)
	}))
	client := newFakeClient()
	ctx := context.Background()
	require.NoError(t, n.Start(ctx, client))
	client.reset()

	err := n.OnMessage(ctx, n.CommandTopic(), []byte("200"))
	assert.ErrorIs(t, err, ErrValidation)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "servo", validationErr.Entity)
	assert.Empty(t, handler.commands)
	assert.Empty(t, client.published)
	require.Len(t, reported, 1)

	require.NoError(t, n.OnMessage(ctx, n.CommandTopic(), []byte("90")))
	assert.Equal(t, []string{"90"}, handler.commands)
	require.Len(t, client.published, 1)
	assert.Equal(t, published{topic: n.StateTopic(), payload: "90", retain: true}, client.published[0])
	assert.Len(t, reported, 1)
}

func TestNumber_OnMessageRejectsGarbage(t *testing.T) {
	tests := []string{"", "ninety", "-1", "180.5", "NaN"}
	for _, payload := range tests {
		t.Run(payload, func(t *testing.T) {
			handler := &recordingHandler{}
			n := newServo(t, handler)
			client := newFakeClient()
			require.NoError(t, n.Start(context.Background(), client))
			client.reset()

			err := n.OnMessage(context.Background(), n.CommandTopic(), []byte(payload))
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, handler.commands)
			assert.Empty(t, client.published)
		})
	}
}

func TestNumber_BoundsAreInclusive(t *testing.T) {
	handler := &recordingHandler{}
	n := newServo(t, handler)
	require.NoError(t, n.Start(context.Background(), newFakeClient()))

	require.NoError(t, n.OnMessage(context.Background(), n.CommandTopic(), []byte("0")))
	require.NoError(t, n.OnMessage(context.Background(), n.CommandTopic(), []byte(" 180 ")))
	assert.Equal(t, []string{"0", "180"}, handler.commands)
}

func TestNumber_IgnoresOtherTopics(t *testing.T) {
	handler := &recordingHandler{}
	n := newServo(t, handler)
	require.NoError(t, n.Start(context.Background(), newFakeClient()))

	assert.NoError(t, n.OnMessage(context.Background(), "kobots/number/other/set", []byte("90")))
	assert.Empty(t, handler.commands)
}

func TestNumber_SendCurrentStateOutOfRange(t *testing.T) {
	n := newServo(t, &recordingHandler{state: "500"})
	client := newFakeClient()
	require.NoError(t, n.Start(context.Background(), client))
	client.reset()

	assert.ErrorIs(t, n.SendCurrentState(context.Background()), ErrValidation)
	assert.Empty(t, client.published)
}

func TestNumber_Construction(t *testing.T) {
	device := testDevice(t)
	handler := &recordingHandler{}

	tests := []struct {
		name string
		cfg  NumberConfig
	}{
		{"inverted range", NumberConfig{Min: 10, Max: 1}},
		{"empty range", NumberConfig{Min: 5, Max: 5}},
		{"negative step", NumberConfig{Min: 0, Max: 10, Step: -1}},
		{"unknown mode", NumberConfig{Min: 0, Max: 10, Mode: "dial"}},
		{"unknown device class", NumberConfig{Min: 0, Max: 10, DeviceClass: "door"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNumber("n", "N", device, handler, tt.cfg)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := NewNumber("n", "N", device, nil, DefaultNumberConfig())
	assert.Error(t, err)
}

func TestNumber_Discovery(t *testing.T) {
	n, err := NewNumber("volume", "Amp Volume", testDevice(t), &recordingHandler{},
		NumberConfig{Min: 0, Max: 11, DeviceClass: "volume", Unit: "L"})
	require.NoError(t, err)

	disco := n.Discovery()
	require.NotNil(t, disco.Min)
	require.NotNil(t, disco.Max)
	require.NotNil(t, disco.Step)
	assert.Equal(t, 0.0, *disco.Min)
	assert.Equal(t, 11.0, *disco.Max)
	assert.Equal(t, 1.0, *disco.Step)
	assert.Equal(t, "auto", disco.Mode)
	assert.Equal(t, "volume", disco.DeviceClass)
	assert.Empty(t, disco.Icon, "a device class replaces the icon")
	assert.Equal(t, "L", disco.UnitOfMeasurement)
}

func TestEntity_HandlerErrors(t *testing.T) {
	ctx := context.Background()

	handler := &recordingHandler{err: errors.New("servo jammed")}
	n := newServo(t, handler)
	client := newFakeClient()
	require.NoError(t, n.Start(ctx, client))
	client.reset()

	err := n.OnMessage(ctx, n.CommandTopic(), []byte("90"))
	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "handle_command", handlerErr.Op)
	assert.EqualError(t, errors.Unwrap(err), "servo jammed")
	assert.Empty(t, client.published)

	panicky := newServo(t, HandlerFuncs{
		Command: func(string) error { panic("boom") },
		State:   func() string { return "1" },
	})
	require.NoError(t, panicky.Start(ctx, client))
	err = panicky.OnMessage(ctx, panicky.CommandTopic(), []byte("1"))
	require.ErrorAs(t, err, &handlerErr)
	assert.Contains(t, err.Error(), "boom")
}

func TestEntity_DefaultErrorFuncLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := newServo(t, &recordingHandler{}, WithLogger(logger))
	require.NoError(t, n.Start(context.Background(), newFakeClient()))

	_ = n.OnMessage(context.Background(), n.CommandTopic(), []byte("200"))
	assert.Contains(t, buf.String(), "Entity: operation failed")
	assert.Contains(t, buf.String(), "entity=servo")
}

func TestEntity_SharedDeviceBlock(t *testing.T) {
	device := testDevice(t)
	servo, err := NewNumber("servo", "Servo", device, &recordingHandler{}, DefaultNumberConfig())
	require.NoError(t, err)
	door, err := NewBinarySensor("door", "Door", device, BinarySensorConfig{DeviceClass: "door"})
	require.NoError(t, err)

	client := newFakeClient()
	require.NoError(t, servo.Start(context.Background(), client))
	require.NoError(t, door.Start(context.Background(), client))
	require.Len(t, client.published, 2)

	first := decodeJSON(t, client.published[0].payload)["device"]
	second := decodeJSON(t, client.published[1].payload)["device"]
	assert.Equal(t, first, second)
	assert.Equal(t, "Kobots", first.(map[string]any)["manufacturer"])
	assert.Equal(t, "tests", first.(map[string]any)["model"])
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&ConnectionError{Op: "connect", Err: io.EOF}))
	assert.True(t, IsTransient(ErrNotConnected))
	assert.False(t, IsTransient(invalid("x", "value", "1", "bad")))
	assert.False(t, IsTransient(&HandlerError{Entity: "x", Op: "handle_command", Err: io.EOF}))
}
