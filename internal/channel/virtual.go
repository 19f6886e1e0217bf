package channel

import (
	"sync"
	"time"

	"codeberg.org/mutker/bmsmon/internal/codec"
)

// Virtual is an in-memory bus serving a single session. Frames and faults
// injected before Open are delivered once the channel is opened.
type Virtual struct {
	mu       sync.Mutex
	queue    *rxQueue
	openErr  error
	closeErr error
	bitrate  Bitrate
	opens    int
	closes   int
}

func NewVirtual() *Virtual {
	return &Virtual{queue: newRxQueue(DefaultQueueSize)}
}

// FailOpen makes the next Open calls return err.
func (v *Virtual) FailOpen(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openErr = err
}

// FailClose makes Close return err. The channel is released regardless.
func (v *Virtual) FailClose(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeErr = err
}

// Inject queues a frame for the reader.
func (v *Virtual) Inject(f codec.Frame) {
	v.queue.pushFrame(f)
}

// InjectFault queues a read fault for the reader.
func (v *Virtual) InjectFault(err error) {
	v.queue.pushFault(err)
}

func (v *Virtual) Open(bitrate Bitrate) (Channel, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.openErr != nil {
		return nil, v.openErr
	}

	if err := bitrate.Validate(); err != nil {
		return nil, err
	}

	v.opens++
	v.bitrate = bitrate

	return &virtualChannel{v: v}, nil
}

// Opens reports how many times the bus was opened.
func (v *Virtual) Opens() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.opens
}

// Closes reports how many times the bus was released.
func (v *Virtual) Closes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closes
}

// Bitrate returns the speed of the last successful Open.
func (v *Virtual) Bitrate() Bitrate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bitrate
}

// Pending reports the number of queued frames and faults.
func (v *Virtual) Pending() int {
	v.queue.mu.Lock()
	defer v.queue.mu.Unlock()
	return len(v.queue.items)
}

func (v *Virtual) Overruns() uint64 {
	return v.queue.Overruns()
}

type virtualChannel struct {
	v *Virtual
}

func (c *virtualChannel) Read() (codec.Frame, bool, error) {
	return c.v.queue.pop()
}

func (c *virtualChannel) Wait(stop <-chan struct{}, timeout time.Duration) {
	c.v.queue.wait(stop, timeout)
}

func (c *virtualChannel) Close() error {
	c.v.queue.close()

	c.v.mu.Lock()
	defer c.v.mu.Unlock()
	c.v.closes++

	return c.v.closeErr
}

func (c *virtualChannel) Overruns() uint64 {
	return c.v.queue.Overruns()
}
