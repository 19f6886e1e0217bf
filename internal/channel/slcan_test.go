package channel_test

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/codec"
	"codeberg.org/mutker/bmsmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	r *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakePort() (*fakePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &fakePort{r: r}, w
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *fakePort) Close() error               { return p.r.Close() }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestParseSLCAN(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    codec.Frame
		ok      bool
		wantErr bool
	}{
		{
			name: "standard frame",
			line: "t20080FA00FA10FA20FA3",
			want: codec.Frame{ID: 0x200, Data: []byte{0x0F, 0xA0, 0x0F, 0xA1, 0x0F, 0xA2, 0x0F, 0xA3}},
			ok:   true,
		},
		{
			name: "lower case hex with timestamp",
			line: "t30020a1b1f2e",
			want: codec.Frame{ID: 0x300, Data: []byte{0x0A, 0x1B}},
			ok:   true,
		},
		{
			name: "zero length",
			line: "t1230",
			want: codec.Frame{ID: 0x123, Data: []byte{}},
			ok:   true,
		},
		{
			name: "extended frame",
			line: "T18FF50E52BEEF",
			want: codec.Frame{ID: 0x18FF50E5, Extended: true, Data: []byte{0xBE, 0xEF}},
			ok:   true,
		},
		{name: "command ack", line: ""},
		{name: "remote frame", line: "r2000"},
		{name: "transmit ack", line: "z"},
		{name: "version reply", line: "V1013"},
		{name: "truncated header", line: "t20", wantErr: true},
		{name: "bad id", line: "tXYZ0", wantErr: true},
		{name: "length too large", line: "t2009", wantErr: true},
		{name: "payload shorter than length", line: "t2004AABB", wantErr: true},
		{name: "bad payload", line: "t2001ZZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok, err := channel.ParseSLCAN([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, ok)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, f)
			}
		})
	}
}

func TestSLCANSession(t *testing.T) {
	port, w := newFakePort()

	ch, err := channel.NewSLCANChannel(port, "S5")
	require.NoError(t, err)
	assert.Equal(t, "C\rS5\rO\r", port.Written())

	// Replies to C (refused, already closed), S5 and O, then traffic.
	go func() {
		_, _ = io.WriteString(w, "\x07\r\rt206301000"+"2\r\x07t3001AB\r")
	}()

	f, err := next(t, ch)
	require.NoError(t, err)
	assert.Equal(t, codec.Frame{ID: 0x206, Data: []byte{0x01, 0x00, 0x02}}, f)

	_, err = next(t, ch)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrChannelRead))

	f, err = next(t, ch)
	require.NoError(t, err)
	assert.Equal(t, codec.Frame{ID: 0x300, Data: []byte{0xAB}}, f)

	require.NoError(t, ch.Close())
	assert.Equal(t, "C\rS5\rO\rC\r", port.Written())
}

func TestSLCANRejectedSetupIsReported(t *testing.T) {
	port, w := newFakePort()

	ch, err := channel.NewSLCANChannel(port, "S5")
	require.NoError(t, err)

	go func() {
		_, _ = io.WriteString(w, "\r\x07\rt3001AB\r")
	}()

	_, err = next(t, ch)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrChannelRead))
	assert.Contains(t, err.Error(), `"S5"`)

	f, err := next(t, ch)
	require.NoError(t, err)
	assert.Equal(t, codec.Frame{ID: 0x300, Data: []byte{0xAB}}, f)

	require.NoError(t, ch.Close())
}
