package channel_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/codec"
	"codeberg.org/mutker/bmsmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `# captured on the bench
(1700000000.000000) can0 200#0FA00FA10FA20FA3
(1700000000.010000) can0 301#0000000102030405

(1700000000.250000) can0 18FF50E5#DEAD
(1700000000.260000) can0 123#R
(1700000000.270000) can0 300#0A1B
`

func TestParseCandump(t *testing.T) {
	records, err := channel.ParseCandump(strings.NewReader(sampleLog))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, time.Duration(0), records[0].Offset)
	assert.Equal(t, codec.Frame{ID: 0x200, Data: []byte{0x0F, 0xA0, 0x0F, 0xA1, 0x0F, 0xA2, 0x0F, 0xA3}}, records[0].Frame)

	assert.Equal(t, 10*time.Millisecond, records[1].Offset)
	assert.Equal(t, 250*time.Millisecond, records[2].Offset)
	assert.True(t, records[2].Frame.Extended)
	assert.Equal(t, uint32(0x18FF50E5), records[2].Frame.ID)

	assert.Equal(t, 270*time.Millisecond, records[3].Offset)
	assert.Equal(t, []byte{0x0A, 0x1B}, records[3].Frame.Data)
}

func TestParseCandumpRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"can0 200#00",
		"1700000000.0 can0 200#00",
		"(1700000000.0) can0 200",
		"(1700000000.0) can0 2000#00",
		"(1700000000.0) can0 200#0",
		"(1700000000.0) can0 200#000102030405060708",
		"(abc) can0 200#00",
	} {
		_, err := channel.ParseCandump(strings.NewReader(line))
		assert.Error(t, err, line)
	}
}

func TestReplayPlaysFramesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	r := channel.NewReplay(path)
	r.MaxGap = 5 * time.Millisecond

	ch, err := r.Open(channel.DefaultBitrate)
	require.NoError(t, err)

	var ids []uint32
	for i := 0; i < 4; i++ {
		f, err := next(t, ch)
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []uint32{0x200, 0x301, 0x18FF50E5, 0x300}, ids)

	ch.Wait(nil, 50*time.Millisecond)
	_, ok, err := ch.Read()
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ch.Close())
}

func TestReplayOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := channel.NewReplay(filepath.Join(dir, "missing.log")).Open(channel.DefaultBitrate)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o600))
	_, err = channel.NewReplay(empty).Open(channel.DefaultBitrate)
	assert.Error(t, err)

	_, err = channel.NewReplay(empty).Open(channel.Bitrate(1))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidBitrate))
}
