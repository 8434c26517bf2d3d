package mqtt

import (
	"testing"
	"time"

	"github.com/ericogr/ads1115-estop/pkg/config"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brokerAddr = "127.0.0.1:18831"

func startBroker(t *testing.T) *mochi.Server {
	t.Helper()
	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "estop-test",
		Address: brokerAddr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestBaseTopic(t *testing.T) {
	assert.Equal(t, DefaultTopic, BaseTopic(config.MQTTConfig{}))
	assert.Equal(t, "plant/line1", BaseTopic(config.MQTTConfig{Topic: "plant/line1/"}))
}

func TestWriteLinePublishesToLogTopic(t *testing.T) {
	server := startBroker(t)
	got := make(chan string, 4)
	require.NoError(t, server.Subscribe("plant/log", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		got <- string(pk.Payload)
	}))

	sink, err := NewMQTT(config.MQTTConfig{Server: "tcp://" + brokerAddr, ClientID: "sink-test", Topic: "plant"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	for _, line := range []string{"Voltage: 1.65 V", "!!! EMERGENCY STOP TRIGGERED !!!"} {
		require.NoError(t, sink.WriteLine(line))
		select {
		case msg := <-got:
			assert.Equal(t, line, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("line %q not delivered", line)
		}
	}
}

func TestConnectFailure(t *testing.T) {
	_, err := NewMQTT(config.MQTTConfig{Server: "tcp://127.0.0.1:1", ClientID: "nobody"})
	require.Error(t, err)
}
