package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuretru/ha-minimqtt/entity"
	"github.com/kuretru/ha-minimqtt/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInbox_Drain(t *testing.T) {
	in := newInbox(4, quietLogger())
	ctx := context.Background()

	start := time.Now()
	assert.Empty(t, in.drain(ctx, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	payload := []byte("90")
	in.push("a", payload)
	in.push("b", []byte("2"))
	payload[0] = 'x'

	messages := in.drain(ctx, time.Second)
	assert.Equal(t, []entity.Message{
		{Topic: "a", Payload: []byte("90")},
		{Topic: "b", Payload: []byte("2")},
	}, messages)
}

func TestInbox_DropsWhenFull(t *testing.T) {
	in := newInbox(2, quietLogger())
	for i := range 5 {
		in.push(fmt.Sprintf("t/%d", i), nil)
	}
	messages := in.pending()
	require.Len(t, messages, 2)
	assert.Equal(t, "t/0", messages[0].Topic)
	assert.Empty(t, in.pending())
}

func TestInbox_DrainStopsOnCancel(t *testing.T) {
	in := newInbox(1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, in.drain(ctx, time.Hour))
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "broker.lan"

	client, err := New(cfg, nil, quietLogger())
	require.NoError(t, err)
	v5, ok := client.(*MQTT5Client)
	require.True(t, ok)
	assert.Equal(t, "mqtt://broker.lan:1883", v5.opts.Server.String())
	assert.Equal(t, 10*time.Second, v5.opts.ConnectTimeout)

	cfg.Transport = config.TransportMQTT311
	client, err = New(cfg, nil, quietLogger())
	require.NoError(t, err)
	v311, ok := client.(*MQTT311Client)
	require.True(t, ok)
	assert.Equal(t, "tcp://broker.lan:1883", v311.opts.Server.String())

	cfg.Transport = "zigbee"
	_, err = New(cfg, nil, quietLogger())
	assert.Error(t, err)

	_, err = New(nil, nil, nil)
	assert.Error(t, err)
}

func TestMQTT5_ClientConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Username = "robot"
	cfg.MQTT.Password = "s3cret"
	will := &Will{Topic: "hamm/rover/availability", Payload: []byte("offline"), Retain: true}
	client, err := New(cfg, will, quietLogger())
	require.NoError(t, err)

	clientConfig := client.(*MQTT5Client).clientConfig()
	assert.Equal(t, cfg.MQTT.ClientID, clientConfig.ClientConfig.ClientID)
	assert.Equal(t, "robot", clientConfig.ConnectUsername)
	assert.Equal(t, []byte("s3cret"), clientConfig.ConnectPassword)
	assert.True(t, clientConfig.CleanStartOnInitialConnection)
	require.NotNil(t, clientConfig.WillMessage)
	assert.Equal(t, "hamm/rover/availability", clientConfig.WillMessage.Topic)
	assert.Equal(t, []byte("offline"), clientConfig.WillMessage.Payload)
	assert.True(t, clientConfig.WillMessage.Retain)
	assert.Nil(t, clientConfig.TlsCfg)
}

func TestMQTT5_NotConnected(t *testing.T) {
	client, err := New(config.Default(), nil, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, client.IsConnected())
	assert.ErrorIs(t, client.Publish(ctx, "t", nil, false), entity.ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe(ctx, "t"), entity.ErrNotConnected)
	assert.ErrorIs(t, client.Unsubscribe(ctx, "t"), entity.ErrNotConnected)

	_, err = client.Loop(ctx, time.Millisecond)
	var connErr *entity.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.NoError(t, client.Disconnect(ctx))
}

func TestMQTT5_ConnectionOutlivesCaller(t *testing.T) {
	client, err := New(config.Default(), nil, quietLogger())
	require.NoError(t, err)
	v5 := client.(*MQTT5Client)

	var connCtx context.Context
	v5.newConnection = func(ctx context.Context, _ autopaho.ClientConfig) (*autopaho.ConnectionManager, error) {
		connCtx = ctx
		return nil, errors.New("dial refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	err = v5.Connect(ctx)
	var connErr *entity.ConnectionError
	require.ErrorAs(t, err, &connErr)

	cancel()
	require.NotNil(t, connCtx)
	assert.NoError(t, connCtx.Err(), "a cancelled caller must not tear the session down before shutdown")
}

func TestMQTT5_ConnectionDown(t *testing.T) {
	client, err := New(config.Default(), nil, quietLogger())
	require.NoError(t, err)
	v5 := client.(*MQTT5Client)

	clientConfig := v5.clientConfig()
	clientConfig.OnConnectionUp(nil, nil)
	assert.True(t, v5.IsConnected())

	require.NotNil(t, clientConfig.OnConnectionDown)
	assert.False(t, clientConfig.OnConnectionDown(), "reconnects belong to the dispatcher")
	assert.False(t, v5.IsConnected())
}
