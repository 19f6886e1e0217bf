package channel

import (
	"sync"
	"time"

	"codeberg.org/mutker/bmsmon/internal/codec"
	"codeberg.org/mutker/bmsmon/internal/errors"
)

// DefaultQueueSize bounds the number of frames buffered between a driver's
// receive goroutine and the engine.
const DefaultQueueSize = 256

type rxItem struct {
	frame codec.Frame
	err   error
}

// rxQueue drops the oldest entry when full.
type rxQueue struct {
	mu       sync.Mutex
	items    []rxItem
	size     int
	overruns uint64
	closed   bool
	notify   chan struct{}
}

func newRxQueue(size int) *rxQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &rxQueue{
		items:  make([]rxItem, 0, size),
		size:   size,
		notify: make(chan struct{}, 1),
	}
}

func (q *rxQueue) pushFrame(f codec.Frame) {
	q.push(rxItem{frame: f})
}

func (q *rxQueue) pushFault(err error) {
	q.push(rxItem{err: errors.New().Wrap(errors.ErrChannelRead, err)})
}

func (q *rxQueue) push(it rxItem) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	if len(q.items) >= q.size {
		q.items[0] = rxItem{}
		q.items = q.items[1:]
		q.overruns++
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	q.signal()
}

func (q *rxQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *rxQueue) pop() (codec.Frame, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return codec.Frame{}, false, errors.New().New(errors.ErrChannelClosed)
		}
		return codec.Frame{}, false, nil
	}

	it := q.items[0]
	q.items[0] = rxItem{}
	q.items = q.items[1:]

	if it.err != nil {
		return codec.Frame{}, false, it.err
	}

	return it.frame, true, nil
}

func (q *rxQueue) wait(stop <-chan struct{}, timeout time.Duration) {
	q.mu.Lock()
	ready := len(q.items) > 0 || q.closed
	q.mu.Unlock()

	if ready {
		return
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-q.notify:
	case <-stop:
	case <-t.C:
	}
}

func (q *rxQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.signal()
}

func (q *rxQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *rxQueue) Overruns() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overruns
}
