package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type pahoBroker struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewPahoBroker returns a Broker backed by the Eclipse Paho client. The
// status topic carries "online" while connected and "offline" as the will.
func NewPahoBroker(cfg Config) Broker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(timeout).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(timeout).
		SetWriteTimeout(timeout).
		SetMaxReconnectInterval(time.Minute).
		SetWill(StatusTopic(cfg.Topic), "offline", 1, true)

	return &pahoBroker{client: mqtt.NewClient(opts), timeout: timeout}
}

// StatusTopic returns the availability topic paired with a snapshot topic.
func StatusTopic(topic string) string {
	return topic + "/status"
}

func (b *pahoBroker) wait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt %s timeout", tag)
	}

	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", tag, err)
	}

	return nil
}

func (b *pahoBroker) Connect() error {
	if b.client.IsConnected() {
		return nil
	}

	return b.wait(b.client.Connect(), "connect")
}

func (b *pahoBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return b.wait(b.client.Publish(topic, qos, retained, payload), "publish")
}

func (b *pahoBroker) Disconnect() {
	b.client.Disconnect(uint(b.timeout / time.Millisecond))
}
