package publish

import (
	"time"

	"codeberg.org/mutker/bmsmon/internal/telemetry"
)

// Publisher forwards snapshots to a downstream consumer. Observe must never
// block the caller.
type Publisher interface {
	Observe(snap telemetry.Snapshot)
	Close() error
}

// Broker is the message transport used by the MQTT publisher.
type Broker interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Retained bool
	// Timeout bounds connect and publish round trips.
	Timeout time.Duration
	// RetryInterval spaces out reconnect attempts.
	RetryInterval time.Duration
}

const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetryInterval = 5 * time.Second
)

// Message is the JSON payload published for every snapshot.
type Message struct {
	Time time.Time `json:"time"`
	telemetry.Report
}
