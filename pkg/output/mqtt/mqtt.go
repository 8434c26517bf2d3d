package mqtt

import (
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/ads1115-estop/pkg/config"
	"github.com/ericogr/ads1115-estop/pkg/output"
)

const (
	// defaults
	DefaultServer   = "tcp://localhost:1883"
	DefaultClientID = "ads1115-estop"
	DefaultTopic    = "ads1115-estop"

	logSuffix    = "/log"
	statusSuffix = "/status"
	statusOnline = "online"
	statusGone   = "offline"
)

// MQTTOutput publishes each line to <topic>/log and keeps a retained
// online/offline status on <topic>/status.
type MQTTOutput struct {
	client      mqtt.Client
	logTopic    string
	statusTopic string
}

// Options builds paho client options from the config, filling defaults.
func Options(cfg config.MQTTConfig, clientSuffix string) *mqtt.ClientOptions {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID + clientSuffix)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// BaseTopic returns the configured base topic without a trailing slash.
func BaseTopic(cfg config.MQTTConfig) string {
	t := strings.TrimSuffix(cfg.Topic, "/")
	if t == "" {
		return DefaultTopic
	}
	return t
}

func NewMQTT(cfg config.MQTTConfig) (output.Sink, error) {
	base := BaseTopic(cfg)
	m := &MQTTOutput{logTopic: base + logSuffix, statusTopic: base + statusSuffix}

	opts := Options(cfg, "")
	opts.SetWill(m.statusTopic, statusGone, 0, true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	m.client = client

	if err := m.PublishRaw(m.statusTopic, []byte(statusOnline), true); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt status: %w", err)
	}
	return m, nil
}

func (m *MQTTOutput) WriteLine(line string) error {
	return m.PublishRaw(m.logTopic, []byte(line), false)
}

func (m *MQTTOutput) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.PublishRaw(m.statusTopic, []byte(statusGone), true)
	m.client.Disconnect(250)
	return err
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for status messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}
