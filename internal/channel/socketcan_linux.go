//go:build linux

package channel

import (
	"fmt"
	"time"

	"codeberg.org/mutker/bmsmon/internal/codec"
	"github.com/go-daq/canbus"
)

// faultBackoff spaces out receive retries after a socket error.
const faultBackoff = 50 * time.Millisecond

// SocketCAN opens a Linux SocketCAN interface such as can0 or vcan0.
//
// The bus speed is a property of the link (ip link set can0 type can
// bitrate 250000); Open only checks that the requested speed is valid.
type SocketCAN struct {
	Interface string
	QueueSize int
}

// NewSocketCAN returns an opener for the named interface.
func NewSocketCAN(iface string) *SocketCAN {
	return &SocketCAN{Interface: iface, QueueSize: DefaultQueueSize}
}

func (s *SocketCAN) Open(bitrate Bitrate) (Channel, error) {
	if err := bitrate.Validate(); err != nil {
		return nil, err
	}

	sock, err := canbus.New()
	if err != nil {
		return nil, fmt.Errorf("create CAN socket: %w", err)
	}

	if err := sock.Bind(s.Interface); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind CAN interface %s: %w", s.Interface, err)
	}

	c := &socketChannel{
		rxQueue: newRxQueue(s.QueueSize),
		sock:    sock,
		done:    make(chan struct{}),
	}
	go c.receive()

	return c, nil
}

type socketChannel struct {
	*rxQueue
	sock *canbus.Socket
	done chan struct{}
}

// receive runs until Close. Recv has no deadline, so the goroutine may stay
// parked in the kernel after Close until the socket reports an error.
func (c *socketChannel) receive() {
	for {
		f, err := c.sock.Recv()
		if c.isClosed() {
			return
		}

		if err != nil {
			c.pushFault(err)
			select {
			case <-c.done:
				return
			case <-time.After(faultBackoff):
			}
			continue
		}

		switch f.Kind {
		case canbus.SFF, canbus.EFF:
			c.pushFrame(codec.Frame{
				ID:       f.ID,
				Extended: f.Kind == canbus.EFF,
				Data:     append([]byte(nil), f.Data...),
			})
		case canbus.ERR:
			c.pushFault(fmt.Errorf("error frame %08X", f.ID))
		}
	}
}

func (c *socketChannel) Read() (codec.Frame, bool, error) {
	return c.pop()
}

func (c *socketChannel) Wait(stop <-chan struct{}, timeout time.Duration) {
	c.wait(stop, timeout)
}

func (c *socketChannel) Close() error {
	c.close()
	close(c.done)

	if err := c.sock.Close(); err != nil {
		return fmt.Errorf("close CAN socket: %w", err)
	}

	return nil
}
