package channel

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/bmsmon/internal/codec"
)

// DefaultMaxGap caps the pause between two replayed frames.
const DefaultMaxGap = time.Second

// Record is one frame from a candump log, timed relative to the first frame.
type Record struct {
	Offset time.Duration
	Frame  codec.Frame
}

// Replay plays back a log written by candump -l, keeping the original
// spacing between frames up to MaxGap.
type Replay struct {
	Path      string
	MaxGap    time.Duration
	Loop      bool
	QueueSize int
}

// NewReplay returns an opener for the given candump log.
func NewReplay(path string) *Replay {
	return &Replay{Path: path, MaxGap: DefaultMaxGap, QueueSize: DefaultQueueSize}
}

func (r *Replay) Open(bitrate Bitrate) (Channel, error) {
	if err := bitrate.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()

	records, err := ParseCandump(f)
	if err != nil {
		return nil, fmt.Errorf("parse replay log %s: %w", r.Path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("replay log %s has no frames", r.Path)
	}

	c := &replayChannel{
		rxQueue:  newRxQueue(r.QueueSize),
		records:  records,
		maxGap:   r.MaxGap,
		loop:     r.Loop,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go c.play()

	return c, nil
}

// ParseCandump reads a candump log. Blank lines, comments, remote frames and
// CAN FD frames are skipped.
func ParseCandump(r io.Reader) ([]Record, error) {
	var (
		records []Record
		first   time.Duration
	)

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected (timestamp) interface frame", n)
		}

		ts, err := parseTimestamp(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}

		f, ok, err := parseCandumpFrame(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if !ok {
			continue
		}

		if len(records) == 0 {
			first = ts
		}
		records = append(records, Record{Offset: ts - first, Frame: f})
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func parseTimestamp(s string) (time.Duration, error) {
	if len(s) < 3 || s[0] != '(' || s[len(s)-1] != ')' {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}

	d, err := time.ParseDuration(s[1:len(s)-1] + "s")
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}

	return d, nil
}

func parseCandumpFrame(s string) (f codec.Frame, ok bool, err error) {
	id, payload, found := strings.Cut(s, "#")
	if !found {
		return f, false, fmt.Errorf("malformed frame %q", s)
	}

	switch len(id) {
	case 3:
	case 8:
		f.Extended = true
	default:
		return f, false, fmt.Errorf("malformed frame id %q", id)
	}

	v, err := strconv.ParseUint(id, 16, 32)
	if err != nil {
		return f, false, fmt.Errorf("malformed frame id %q", id)
	}
	f.ID = uint32(v)

	if strings.HasPrefix(payload, "#") || strings.HasPrefix(payload, "R") {
		return f, false, nil
	}

	if len(payload) > codec.MaxPayload*2 {
		return f, false, fmt.Errorf("payload %q exceeds %d bytes", payload, codec.MaxPayload)
	}

	f.Data, err = hex.DecodeString(payload)
	if err != nil {
		return f, false, fmt.Errorf("malformed payload %q", payload)
	}

	return f, true, nil
}

type replayChannel struct {
	*rxQueue
	records  []Record
	maxGap   time.Duration
	loop     bool
	done     chan struct{}
	finished chan struct{}
}

func (c *replayChannel) play() {
	defer close(c.finished)

	for {
		var prev time.Duration
		for _, rec := range c.records {
			gap := rec.Offset - prev
			if gap > c.maxGap {
				gap = c.maxGap
			}
			prev = rec.Offset

			if !c.sleep(gap) {
				return
			}
			c.pushFrame(rec.Frame)
		}

		if !c.loop {
			return
		}

		if !c.sleep(max(c.maxGap, 10*time.Millisecond)) {
			return
		}
	}
}

// sleep returns false if the channel was closed meanwhile.
func (c *replayChannel) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-c.done:
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-c.done:
		return false
	case <-t.C:
		return true
	}
}

func (c *replayChannel) Read() (codec.Frame, bool, error) {
	return c.pop()
}

func (c *replayChannel) Wait(stop <-chan struct{}, timeout time.Duration) {
	c.wait(stop, timeout)
}

func (c *replayChannel) Close() error {
	c.close()
	close(c.done)
	<-c.finished

	return nil
}
