// Package engine runs the acquisition loop: it owns a bus channel, decodes
// every frame it reads into the telemetry state and pushes snapshots to an
// observer.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/codec"
	"codeberg.org/mutker/bmsmon/internal/errors"
	"codeberg.org/mutker/bmsmon/internal/logger"
	"codeberg.org/mutker/bmsmon/internal/telemetry"
	"github.com/temoto/alive/v2"
)

// Engine is single use: once stopped it cannot be started again.
type Engine struct {
	opener   channel.Opener
	observer Observer
	cfg      Config
	log      logger.Logger

	mu       sync.Mutex // serializes Start and Stop
	state    atomic.Int32
	ch       channel.Channel
	alive    *alive.Alive
	overruns atomic.Value // channel.OverrunCounter

	latest atomic.Pointer[telemetry.Snapshot]

	frames  atomic.Uint64
	decoded atomic.Uint64
	skipped atomic.Uint64
	faults  atomic.Uint64
	panics  atomic.Uint64
}

// New creates an idle engine. observer and log may be nil.
func New(opener channel.Opener, cfg Config, observer Observer, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}

	return &Engine{
		opener:   opener,
		observer: observer,
		cfg:      cfg.withDefaults(),
		log:      log.With("engine"),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Start opens the channel and launches the acquisition loop.
func (e *Engine) Start() error {
	errFactory := errors.New()

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case Idle:
	case Stopped:
		return errFactory.New(errors.ErrNotRestartable)
	default:
		return errFactory.New(errors.ErrAlreadyStarted)
	}

	e.setState(Starting)

	ch, err := e.opener.Open(e.cfg.Bitrate)
	if err != nil {
		e.setState(Idle)
		return errFactory.Wrap(errors.ErrChannelInit, err)
	}

	e.ch = ch
	if oc, ok := ch.(channel.OverrunCounter); ok {
		e.overruns.Store(oc)
	}

	e.alive = alive.NewAlive()
	e.alive.Add(1)
	go e.run(ch, e.alive)

	e.setState(Running)
	e.log.Info().
		Str("bitrate", e.cfg.Bitrate.String()).
		Dur("poll_interval", e.cfg.PollInterval).
		Msg("Acquisition started")

	return nil
}

// Stop ends the acquisition loop, waits for it to exit and releases the
// channel. It is a no-op unless the engine is running. A release failure is
// logged and returned; the engine is stopped either way.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != Running {
		return nil
	}

	e.setState(Stopping)
	e.alive.Stop()
	e.join()

	err := e.ch.Close()
	e.ch = nil
	e.setState(Stopped)

	if err != nil {
		releaseErr := errors.New().Wrap(errors.ErrChannelRelease, err)
		e.log.Warn().Err(releaseErr).Msg("Channel release reported an error")
		return releaseErr
	}

	e.log.Info().Msg("Acquisition stopped")

	return nil
}

func (e *Engine) join() {
	timer := time.NewTimer(e.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case <-e.alive.WaitChan():
		return
	case <-timer.C:
	}

	e.log.Warn().
		Dur("waited", e.cfg.JoinTimeout).
		Msg("Acquisition loop has not exited, observer may be blocking")
	e.alive.Wait()
}

// Latest returns the most recent snapshot. ok is false until the first frame
// has been decoded.
func (e *Engine) Latest() (snap telemetry.Snapshot, ok bool) {
	p := e.latest.Load()
	if p == nil {
		return snap, false
	}

	return *p, true
}

// Stats returns the session counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Frames:         e.frames.Load(),
		Decoded:        e.decoded.Load(),
		Skipped:        e.skipped.Load(),
		Faults:         e.faults.Load(),
		ObserverPanics: e.panics.Load(),
	}

	if oc, ok := e.overruns.Load().(channel.OverrunCounter); ok {
		s.Overruns = oc.Overruns()
	}

	return s
}

func (e *Engine) run(ch channel.Channel, a *alive.Alive) {
	defer a.Done()

	state := telemetry.NewState()
	stop := a.StopChan()
	consecutive := 0

	for {
		select {
		case <-stop:
			return
		default:
		}

		f, ok, err := ch.Read()
		if err != nil {
			consecutive++
			e.faults.Add(1)
			e.reportFault(err, consecutive)
			// Drivers pace their own transient faults.
			if !errors.IsTransient(err) {
				pause(stop, e.cfg.PollInterval)
			}
			continue
		}

		if !ok {
			ch.Wait(stop, e.cfg.PollInterval)
			continue
		}

		if consecutive > 0 {
			e.log.Info().Int("faults", consecutive).Msg("Bus reads recovered")
			consecutive = 0
		}

		e.frames.Add(1)

		u, decoded := codec.Decode(f)
		if !decoded {
			e.skipped.Add(1)
			e.log.Debug().Str("frame", f.String()).Msg("Frame skipped")
			continue
		}

		state.Apply(u)
		snap := state.Snapshot()
		e.latest.Store(&snap)
		e.decoded.Add(1)

		e.notify(snap)
	}
}

func (e *Engine) reportFault(err error, n int) {
	switch {
	case n == 1:
		e.log.Warn().Err(err).Msg("Bus read fault")
	case n%e.cfg.FaultThreshold == 0:
		e.log.Error().Err(err).Int("consecutive", n).Msg("Bus read faults persist")
	}
}

func (e *Engine) notify(snap telemetry.Snapshot) {
	if e.observer == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error().Interface("panic", r).Msg("Observer panicked")
		}
	}()

	e.observer(snap)
}

// pause sleeps for d or until stop is closed.
func pause(stop <-chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-stop:
	case <-t.C:
	}
}
