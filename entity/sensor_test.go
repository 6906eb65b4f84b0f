package entity

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinarySensor_RoundTrip(t *testing.T) {
	s, err := NewBinarySensor("door", "Door", testDevice(t), BinarySensorConfig{})
	require.NoError(t, err)

	for _, on := range []bool{true, false} {
		decoded, err := s.Decode(s.Encode(on))
		require.NoError(t, err)
		assert.Equal(t, on, decoded)
	}

	decoded, err := s.Decode("on")
	require.NoError(t, err)
	assert.True(t, decoded)

	_, err = s.Decode("open")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBinarySensor_CustomPayloads(t *testing.T) {
	s, err := NewBinarySensor("window", "Window", testDevice(t), BinarySensorConfig{
		DeviceClass: "window",
		PayloadOn:   "open",
		PayloadOff:  "closed",
		ExpireAfter: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, "open", s.Encode(true))
	assert.Equal(t, "closed", s.Encode(false))

	disco := s.Discovery()
	assert.Equal(t, "open", disco.PayloadOn)
	assert.Equal(t, "closed", disco.PayloadOff)
	assert.Equal(t, 60, disco.ExpireAfter)
	assert.Equal(t, "window", disco.DeviceClass)
	assert.Equal(t, "diagnostic", disco.EntityCategory)
	assert.Empty(t, disco.CommandTopic)
}

func TestBinarySensor_Construction(t *testing.T) {
	device := testDevice(t)
	tests := []struct {
		name string
		cfg  BinarySensorConfig
	}{
		{"same payloads", BinarySensorConfig{PayloadOn: "x", PayloadOff: "x"}},
		{"unknown device class", BinarySensorConfig{DeviceClass: "temperature"}},
		{"negative expiry", BinarySensorConfig{ExpireAfter: -1}},
		{"negative off delay", BinarySensorConfig{OffDelay: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBinarySensor("s", "S", device, tt.cfg)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBinarySensor_SetState(t *testing.T) {
	s, err := NewBinarySensor("door", "Door", testDevice(t), BinarySensorConfig{},
		WithTopicPrefix("kobots"), WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	// inactive sensors keep the value but cannot publish it
	assert.ErrorIs(t, s.SetState(ctx, true), ErrNotConnected)
	assert.True(t, s.State())

	client := newFakeClient()
	require.NoError(t, s.Start(ctx, client))
	assert.Empty(t, client.subscribed, "sensors have no command topic")
	client.reset()

	require.NoError(t, s.SetState(ctx, false))
	require.NoError(t, s.SendCurrentState(ctx))
	assert.Equal(t, []published{
		{topic: "kobots/binary_sensor/door/state", payload: "OFF", retain: true},
		{topic: "kobots/binary_sensor/door/state", payload: "OFF", retain: true},
	}, client.published)
	assert.False(t, s.State())
}

func TestSensors_AreReadOnly(t *testing.T) {
	device := testDevice(t)
	var e Entity
	e, err := NewBinarySensor("door", "Door", device, BinarySensorConfig{})
	require.NoError(t, err)
	_, ok := e.(CommandReceiver)
	assert.False(t, ok)

	e, err = NewAnalogSensor("temp", "Temperature", device, AnalogSensorConfig{})
	require.NoError(t, err)
	_, ok = e.(CommandReceiver)
	assert.False(t, ok)
	assert.Empty(t, e.CommandTopic())
}

func TestAnalogSensor_Format(t *testing.T) {
	device := testDevice(t)

	shortest, err := NewAnalogSensor("a", "A", device, AnalogSensorConfig{})
	require.NoError(t, err)
	assert.Equal(t, "21.375", shortest.Format(21.375))
	assert.Equal(t, "3", shortest.Format(3))

	fixed, err := NewAnalogSensor("b", "B", device, AnalogSensorConfig{Precision: Precision(1)})
	require.NoError(t, err)
	assert.Equal(t, "21.4", fixed.Format(21.375))
	assert.Equal(t, "3.0", fixed.Format(3))
}

func TestAnalogSensor_SetValue(t *testing.T) {
	s, err := NewAnalogSensor("cpu_temp", "CPU Temperature", testDevice(t), AnalogSensorConfig{
		DeviceClass: "temperature",
		StateClass:  "measurement",
		Unit:        "°C",
		Precision:   Precision(2),
	}, WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()
	client := newFakeClient()
	require.NoError(t, s.Start(ctx, client))
	client.reset()

	// nothing to report until a value is set
	assert.ErrorIs(t, s.SendCurrentState(ctx), ErrValidation)

	require.NoError(t, s.SetValue(ctx, 48.126))
	require.Len(t, client.published, 1)
	assert.Equal(t, published{topic: "hamm/sensor/cpu_temp/state", payload: "48.13", retain: true}, client.published[0])

	assert.ErrorIs(t, s.SetValue(ctx, math.NaN()), ErrValidation)
	assert.ErrorIs(t, s.SetValue(ctx, math.Inf(1)), ErrValidation)
	assert.Len(t, client.published, 1)

	disco := s.Discovery()
	assert.Equal(t, "measurement", disco.StateClass)
	assert.Equal(t, "°C", disco.UnitOfMeasurement)
	require.NotNil(t, disco.SuggestedPrecision)
	assert.Equal(t, 2, *disco.SuggestedPrecision)
}

func TestAnalogSensor_Construction(t *testing.T) {
	device := testDevice(t)
	tests := []struct {
		name string
		cfg  AnalogSensorConfig
	}{
		{"unknown device class", AnalogSensorConfig{DeviceClass: "door"}},
		{"unknown state class", AnalogSensorConfig{StateClass: "sometimes"}},
		{"negative precision", AnalogSensorConfig{Precision: Precision(-1)}},
		{"negative expiry", AnalogSensorConfig{ExpireAfter: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnalogSensor("s", "S", device, tt.cfg)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
