package publish_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/bmsmon/internal/publish"
	"codeberg.org/mutker/bmsmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu           sync.Mutex
	connectErrs  []error
	connects     int
	messages     []message
	disconnected bool

	// When set, data publishes signal inflight and wait for gate.
	inflight chan struct{}
	gate     chan struct{}
	dataSent chan message
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{dataSent: make(chan message, 16)}
}

func (b *fakeBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connects++
	if len(b.connectErrs) > 0 {
		err := b.connectErrs[0]
		b.connectErrs = b.connectErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	m := message{topic: topic, qos: qos, retained: retained, payload: payload}

	if topic != publish.StatusTopic(testConfig.Topic) {
		if b.inflight != nil {
			b.inflight <- struct{}{}
			<-b.gate
		}
		defer func() { b.dataSent <- m }()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, m)
	return nil
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
}

func (b *fakeBroker) snapshot() ([]message, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...), b.connects, b.disconnected
}

var testConfig = publish.Config{
	Broker:        "tcp://broker.test:1883",
	Topic:         "bmsmon/snapshot",
	QoS:           1,
	Retained:      true,
	RetryInterval: 10 * time.Millisecond,
}

func snapshotWithSerial(serial string) telemetry.Snapshot {
	st := telemetry.NewState()
	u := telemetry.Update{Serial: serial, HasSerial: true}
	u.SetCell(0, 4000)
	st.Apply(u)
	return st.Snapshot()
}

func waitSent(t *testing.T, b *fakeBroker) message {
	t.Helper()

	select {
	case m := <-b.dataSent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return message{}
	}
}

func decode(t *testing.T, m message) publish.Message {
	t.Helper()

	var out publish.Message
	require.NoError(t, json.Unmarshal(m.payload, &out))
	return out
}

func TestPublishesSnapshot(t *testing.T) {
	b := newFakeBroker()
	p := publish.New(b, testConfig, nil)

	p.Observe(snapshotWithSerial("0A1B"))

	m := waitSent(t, b)
	assert.Equal(t, "bmsmon/snapshot", m.topic)
	assert.Equal(t, byte(1), m.qos)
	assert.True(t, m.retained)

	out := decode(t, m)
	require.NotNil(t, out.Serial)
	assert.Equal(t, "0A1B", *out.Serial)
	require.Len(t, out.Cells, telemetry.CellCount)
	require.NotNil(t, out.Cells[0])
	assert.InDelta(t, 4.0, *out.Cells[0], 1e-9)
	assert.Nil(t, out.Cells[1])
	assert.False(t, out.Time.IsZero())

	require.NoError(t, p.Close())

	msgs, connects, disconnected := b.snapshot()
	assert.Equal(t, 1, connects)
	assert.True(t, disconnected)
	require.Len(t, msgs, 3)
	assert.Equal(t, "bmsmon/snapshot/status", msgs[0].topic)
	assert.Equal(t, "online", string(msgs[0].payload))
	assert.Equal(t, "offline", string(msgs[2].payload))
	assert.Equal(t, uint64(1), p.Published())
}

func TestLatestSnapshotWins(t *testing.T) {
	b := newFakeBroker()
	b.inflight = make(chan struct{})
	b.gate = make(chan struct{})

	p := publish.New(b, testConfig, nil)
	defer p.Close()

	p.Observe(snapshotWithSerial("01"))
	<-b.inflight

	// Observe never blocks, even while a publish is stuck.
	done := make(chan struct{})
	go func() {
		p.Observe(snapshotWithSerial("02"))
		p.Observe(snapshotWithSerial("03"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe blocked")
	}

	b.gate <- struct{}{}
	assert.Equal(t, "01", *decode(t, waitSent(t, b)).Serial)

	<-b.inflight
	b.gate <- struct{}{}
	assert.Equal(t, "03", *decode(t, waitSent(t, b)).Serial)

	assert.Equal(t, uint64(1), p.Superseded())
	require.Eventually(t, func() bool {
		return p.Published() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectsAfterFailure(t *testing.T) {
	b := newFakeBroker()
	b.connectErrs = []error{fmt.Errorf("connection refused"), fmt.Errorf("connection refused")}

	p := publish.New(b, testConfig, nil)
	defer p.Close()

	p.Observe(snapshotWithSerial("0A1B"))

	m := waitSent(t, b)
	assert.Equal(t, "0A1B", *decode(t, m).Serial)

	_, connects, _ := b.snapshot()
	assert.Equal(t, 3, connects)
}

func TestCloseWithoutConnection(t *testing.T) {
	b := newFakeBroker()
	p := publish.New(b, testConfig, nil)

	require.NoError(t, p.Close())

	msgs, connects, disconnected := b.snapshot()
	assert.Empty(t, msgs)
	assert.Zero(t, connects)
	assert.False(t, disconnected)
}

func TestNoop(t *testing.T) {
	p := publish.NewNoop()
	p.Observe(telemetry.Snapshot{})
	assert.NoError(t, p.Close())
}
