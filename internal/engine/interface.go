package engine

import (
	"time"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/telemetry"
)

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultJoinTimeout    = 2 * time.Second
	DefaultFaultThreshold = 50
)

// Observer is called on the acquisition goroutine after every frame that
// updated the telemetry state. It must return quickly; slow consumers should
// hand the snapshot off to their own goroutine.
type Observer func(telemetry.Snapshot)

// Config holds the engine's tuning knobs. Zero values select the defaults.
type Config struct {
	Bitrate channel.Bitrate
	// PollInterval bounds the idle wait between reads. Lower values reduce
	// latency after a quiet period at the cost of more wakeups.
	PollInterval time.Duration
	// JoinTimeout is how long Stop waits before warning that the
	// acquisition goroutine is stuck. Stop keeps waiting afterwards.
	JoinTimeout time.Duration
	// FaultThreshold sets how often a run of consecutive read faults is
	// logged: on the first fault and every FaultThreshold-th after it.
	FaultThreshold int
}

func (c Config) withDefaults() Config {
	if c.Bitrate == 0 {
		c.Bitrate = channel.DefaultBitrate
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.FaultThreshold <= 0 {
		c.FaultThreshold = DefaultFaultThreshold
	}
	return c
}

// State is the engine lifecycle position.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats are cumulative counters for one engine session.
type Stats struct {
	Frames         uint64 // frames read from the channel
	Decoded        uint64 // frames that updated the state
	Skipped        uint64 // unknown, extended or short frames
	Faults         uint64 // read faults
	ObserverPanics uint64
	Overruns       uint64 // frames dropped by the channel's receive queue
}
