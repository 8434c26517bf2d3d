package trigger

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/ads1115-estop/pkg/config"
	outmqtt "github.com/ericogr/ads1115-estop/pkg/output/mqtt"
)

const estopSuffix = "/estop"

// MQTT raises an interrupt for every message on <topic>/estop.
type MQTT struct {
	client mqtt.Client
	topic  string
}

func NewMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	client := mqtt.NewClient(outmqtt.Options(cfg, "-estop"))
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTT{client: client, topic: outmqtt.BaseTopic(cfg) + estopSuffix}, nil
}

func (m *MQTT) Topic() string { return m.topic }

func (m *MQTT) Run(ctx context.Context, isr Handler) error {
	defer m.client.Disconnect(250)
	token := m.client.Subscribe(m.topic, 0, func(mqtt.Client, mqtt.Message) { isr() })
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", m.topic, token.Error())
	}
	<-ctx.Done()
	m.client.Unsubscribe(m.topic).Wait()
	return nil
}
