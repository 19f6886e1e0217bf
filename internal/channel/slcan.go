package channel

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/bmsmon/internal/codec"
	"go.bug.st/serial"
)

const (
	DefaultSerialBaud = 115200

	slcanReadTimeout = 100 * time.Millisecond
	slcanMaxLine     = 64
	slcanBell        = 0x07
)

// SLCAN opens a Lawicel serial-line CAN adapter (CANable, USBtin and the like).
type SLCAN struct {
	Port      string
	Baud      int
	QueueSize int
}

// NewSLCAN returns an opener for the given serial port.
func NewSLCAN(port string, baud int) *SLCAN {
	if baud <= 0 {
		baud = DefaultSerialBaud
	}

	return &SLCAN{Port: port, Baud: baud, QueueSize: DefaultQueueSize}
}

func (s *SLCAN) Open(bitrate Bitrate) (Channel, error) {
	setup, err := bitrate.slcanSetup()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(s.Port, &serial.Mode{
		BaudRate: s.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", s.Port, err)
	}

	if err := port.SetReadTimeout(slcanReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", s.Port, err)
	}

	c, err := newSLCANChannel(port, setup, s.QueueSize)
	if err != nil {
		return nil, err
	}

	return c, nil
}

type slcanChannel struct {
	*rxQueue
	port    io.ReadWriteCloser
	writeMu sync.Mutex
	done    chan struct{}

	// setup commands whose CR or BEL reply has not arrived yet, oldest
	// first. Owned by receive.
	unacked []string
}

// newSLCANChannel resets the adapter, sets its speed and opens the bus.
func newSLCANChannel(port io.ReadWriteCloser, setup string, queueSize int) (*slcanChannel, error) {
	c := &slcanChannel{
		rxQueue: newRxQueue(queueSize),
		port:    port,
		done:    make(chan struct{}),
	}

	cmds := []string{"C", setup, "O"}
	for _, cmd := range cmds {
		if err := c.command(cmd); err != nil {
			port.Close()
			return nil, err
		}
	}
	c.unacked = cmds

	go c.receive()

	return c, nil
}

func (c *slcanChannel) command(cmd string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := io.WriteString(c.port, cmd+"\r"); err != nil {
		return fmt.Errorf("slcan command %q: %w", cmd, err)
	}

	return nil
}

func (c *slcanChannel) receive() {
	defer close(c.done)

	buf := make([]byte, 256)
	line := make([]byte, 0, slcanMaxLine)

	for {
		n, err := c.port.Read(buf)
		if c.isClosed() {
			return
		}

		if err != nil {
			if err == io.EOF {
				c.pushFault(fmt.Errorf("serial port closed by device"))
				return
			}
			c.pushFault(err)
			time.Sleep(slcanReadTimeout)
			continue
		}

		for _, b := range buf[:n] {
			reply := b == slcanBell || (b == '\r' && len(line) == 0)

			switch {
			case reply && len(c.unacked) > 0:
				c.setupReply(b == slcanBell)
				line = line[:0]
			case b == '\r':
				c.dispatch(line)
				line = line[:0]
			case b == slcanBell:
				c.pushFault(fmt.Errorf("slcan adapter rejected command"))
				line = line[:0]
			default:
				if len(line) == slcanMaxLine {
					c.pushFault(fmt.Errorf("slcan line exceeds %d bytes", slcanMaxLine))
					line = line[:0]
				}
				line = append(line, b)
			}
		}
	}
}

// setupReply consumes the reply to the oldest unacknowledged setup command.
// The initial close is refused by adapters that are already closed.
func (c *slcanChannel) setupReply(rejected bool) {
	cmd := c.unacked[0]
	c.unacked = c.unacked[1:]

	if rejected && cmd != "C" {
		c.pushFault(fmt.Errorf("slcan adapter rejected setup command %q", cmd))
	}
}

func (c *slcanChannel) dispatch(line []byte) {
	f, ok, err := parseSLCAN(line)
	switch {
	case err != nil:
		c.pushFault(err)
	case ok:
		c.pushFrame(f)
	}
}

// parseSLCAN decodes one received line without its terminator. Lines that
// carry no data frame (command acks, remote frames) return ok == false.
func parseSLCAN(line []byte) (f codec.Frame, ok bool, err error) {
	if len(line) == 0 {
		return f, false, nil
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
		f.Extended = true
	default:
		return f, false, nil
	}

	if len(line) < 1+idLen+1 {
		return f, false, fmt.Errorf("slcan frame too short: %q", line)
	}

	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return f, false, fmt.Errorf("slcan frame id %q: %w", line[1:1+idLen], err)
	}
	f.ID = uint32(id)

	dlc := int(line[1+idLen] - '0')
	if dlc > codec.MaxPayload {
		return f, false, fmt.Errorf("slcan frame length %q", line[1+idLen])
	}

	data := line[2+idLen:]
	if len(data) < dlc*2 {
		return f, false, fmt.Errorf("slcan frame truncated: %q", line)
	}

	// Anything past the payload is the optional adapter timestamp.
	f.Data = make([]byte, dlc)
	if _, err := hex.Decode(f.Data, data[:dlc*2]); err != nil {
		return f, false, fmt.Errorf("slcan frame payload %q: %w", data[:dlc*2], err)
	}

	return f, true, nil
}

func (c *slcanChannel) Read() (codec.Frame, bool, error) {
	return c.pop()
}

func (c *slcanChannel) Wait(stop <-chan struct{}, timeout time.Duration) {
	c.wait(stop, timeout)
}

func (c *slcanChannel) Close() error {
	c.close()

	cmdErr := c.command("C")
	closeErr := c.port.Close()
	<-c.done

	if closeErr != nil {
		return fmt.Errorf("close serial port: %w", closeErr)
	}

	return cmdErr
}
