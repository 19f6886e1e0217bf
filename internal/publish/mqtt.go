// Package publish ships telemetry snapshots to MQTT.
package publish

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/bmsmon/internal/errors"
	"codeberg.org/mutker/bmsmon/internal/logger"
	"codeberg.org/mutker/bmsmon/internal/telemetry"
	"github.com/temoto/alive/v2"
)

type pending struct {
	snap telemetry.Snapshot
	at   time.Time
}

// MQTT publishes the most recent snapshot from its own goroutine. Snapshots
// that arrive while a publish is in flight replace each other; only the
// latest one is sent.
type MQTT struct {
	broker Broker
	cfg    Config
	log    logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	next      *pending
	connected bool
	wake      chan struct{}
	alive     *alive.Alive

	published  atomic.Uint64
	superseded atomic.Uint64
	failures   atomic.Uint64
}

// New starts a publisher on top of b. log may be nil.
func New(b Broker, cfg Config, log logger.Logger) *MQTT {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}

	p := &MQTT{
		broker: b,
		cfg:    cfg,
		log:    log.With("publish"),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		alive:  alive.NewAlive(),
	}

	p.alive.Add(1)
	go p.run()

	return p
}

// NewMQTT connects lazily to the broker named in cfg.
func NewMQTT(cfg Config, log logger.Logger) *MQTT {
	return New(NewPahoBroker(cfg), cfg, log)
}

// Observe queues snap for publishing and returns immediately.
func (p *MQTT) Observe(snap telemetry.Snapshot) {
	p.mu.Lock()
	if p.next != nil {
		p.superseded.Add(1)
	}
	p.next = &pending{snap: snap, at: p.now()}
	p.mu.Unlock()

	p.signal()
}

func (p *MQTT) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *MQTT) take() *pending {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.next
	p.next = nil

	return n
}

// requeue puts n back unless a newer snapshot already took its place.
func (p *MQTT) requeue(n *pending) {
	p.mu.Lock()
	if p.next == nil {
		p.next = n
	}
	p.mu.Unlock()
}

func (p *MQTT) run() {
	defer p.alive.Done()

	stop := p.alive.StopChan()
	for {
		select {
		case <-stop:
			return
		case <-p.wake:
		}

		n := p.take()
		if n == nil {
			continue
		}

		if err := p.send(n); err != nil {
			p.failures.Add(1)
			if !errors.IsTransient(err) {
				p.log.Error().Err(err).Msg("Snapshot dropped")
				continue
			}

			p.log.Warn().Err(err).Dur("retry_in", p.cfg.RetryInterval).Msg("Snapshot not published")
			p.requeue(n)

			t := time.NewTimer(p.cfg.RetryInterval)
			select {
			case <-stop:
				t.Stop()
				return
			case <-t.C:
			}
			p.signal()
		}
	}
}

func (p *MQTT) send(n *pending) error {
	errFactory := errors.New()

	if !p.isConnected() {
		if err := p.broker.Connect(); err != nil {
			return errFactory.Wrap(errors.ErrPublish, err)
		}
		p.setConnected(true)
		p.log.Info().Str("broker", p.cfg.Broker).Msg("Connected to MQTT broker")

		if err := p.broker.Publish(StatusTopic(p.cfg.Topic), 1, true, []byte("online")); err != nil {
			p.log.Warn().Err(err).Msg("Status not published")
		}
	}

	payload, err := json.Marshal(Message{Time: n.at.UTC(), Report: n.snap.Report()})
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := p.broker.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	p.published.Add(1)

	return nil
}

func (p *MQTT) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *MQTT) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Published returns how many snapshots reached the broker.
func (p *MQTT) Published() uint64 {
	return p.published.Load()
}

// Superseded returns how many snapshots were replaced before being sent.
func (p *MQTT) Superseded() uint64 {
	return p.superseded.Load()
}

// Close stops the publisher goroutine and disconnects from the broker.
// Unsent snapshots are dropped.
func (p *MQTT) Close() error {
	p.alive.Stop()
	p.alive.Wait()

	if p.isConnected() {
		if err := p.broker.Publish(StatusTopic(p.cfg.Topic), 1, true, []byte("offline")); err != nil {
			p.log.Warn().Err(err).Msg("Status not published")
		}
		p.broker.Disconnect()
		p.setConnected(false)
	}

	return nil
}
