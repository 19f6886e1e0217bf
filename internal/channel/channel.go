// Package channel provides the bus drivers the acquisition engine reads from.
//
// Every driver feeds a bounded receive queue from its own goroutine, so Read
// never blocks and Wait gives the engine a bounded idle wait that a stop
// request can cut short.
package channel

import (
	"time"

	"codeberg.org/mutker/bmsmon/internal/codec"
)

// Channel is one open connection to the bus.
type Channel interface {
	// Read returns the next queued frame. ok is false when nothing is queued.
	// A non-nil error is a read fault; the channel stays usable.
	Read() (f codec.Frame, ok bool, err error)
	// Wait blocks until something is queued, stop is closed or timeout elapses.
	Wait(stop <-chan struct{}, timeout time.Duration)
	// Close releases the channel. It is called exactly once.
	Close() error
}

// Opener acquires a Channel at the given bus speed.
type Opener interface {
	Open(bitrate Bitrate) (Channel, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(bitrate Bitrate) (Channel, error)

func (f OpenerFunc) Open(bitrate Bitrate) (Channel, error) {
	return f(bitrate)
}

// OverrunCounter is implemented by channels that drop frames when the
// consumer falls behind.
type OverrunCounter interface {
	Overruns() uint64
}
