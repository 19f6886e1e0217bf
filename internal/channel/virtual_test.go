package channel_test

import (
	"fmt"
	"testing"
	"time"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/codec"
	"codeberg.org/mutker/bmsmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualDeliversInOrder(t *testing.T) {
	v := channel.NewVirtual()
	v.Inject(codec.Frame{ID: 0x200, Data: []byte{1}})

	ch, err := v.Open(channel.DefaultBitrate)
	require.NoError(t, err)
	defer ch.Close()

	v.Inject(codec.Frame{ID: 0x201, Data: []byte{2}})

	f, ok, err := ch.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x200), f.ID)

	f, ok, err = ch.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x201), f.ID)

	_, ok, err = ch.Read()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestVirtualFault(t *testing.T) {
	v := channel.NewVirtual()
	ch, err := v.Open(channel.DefaultBitrate)
	require.NoError(t, err)
	defer ch.Close()

	v.InjectFault(fmt.Errorf("bus-off"))

	_, ok, err := ch.Read()
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrChannelRead))
	assert.Contains(t, err.Error(), "bus-off")
}

func TestVirtualOverrunDropsOldest(t *testing.T) {
	v := channel.NewVirtual()
	for i := 0; i < channel.DefaultQueueSize+10; i++ {
		v.Inject(codec.Frame{ID: uint32(i)})
	}

	assert.Equal(t, uint64(10), v.Overruns())
	assert.Equal(t, channel.DefaultQueueSize, v.Pending())

	ch, err := v.Open(channel.DefaultBitrate)
	require.NoError(t, err)
	defer ch.Close()

	f, ok, err := ch.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(10), f.ID)
}

func TestVirtualWait(t *testing.T) {
	v := channel.NewVirtual()
	ch, err := v.Open(channel.DefaultBitrate)
	require.NoError(t, err)
	defer ch.Close()

	t.Run("times out when idle", func(t *testing.T) {
		start := time.Now()
		ch.Wait(nil, 30*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	})

	t.Run("returns on stop", func(t *testing.T) {
		stop := make(chan struct{})
		close(stop)

		start := time.Now()
		ch.Wait(stop, time.Minute)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("returns when a frame arrives", func(t *testing.T) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			v.Inject(codec.Frame{ID: 0x300, Data: []byte{1}})
		}()

		start := time.Now()
		ch.Wait(nil, time.Minute)
		assert.Less(t, time.Since(start), time.Second)

		f, err := next(t, ch)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x300), f.ID)
	})
}

func TestVirtualClose(t *testing.T) {
	v := channel.NewVirtual()
	v.FailClose(fmt.Errorf("driver busy"))

	ch, err := v.Open(channel.DefaultBitrate)
	require.NoError(t, err)

	assert.EqualError(t, ch.Close(), "driver busy")
	assert.Equal(t, 1, v.Opens())
	assert.Equal(t, 1, v.Closes())

	v.Inject(codec.Frame{ID: 0x200})
	_, ok, err := ch.Read()
	assert.False(t, ok)
	assert.True(t, errors.HasCode(err, errors.ErrChannelClosed))
}

func TestVirtualOpenFailure(t *testing.T) {
	v := channel.NewVirtual()
	v.FailOpen(fmt.Errorf("no such device"))

	ch, err := v.Open(channel.DefaultBitrate)
	assert.Nil(t, ch)
	assert.EqualError(t, err, "no such device")
	assert.Zero(t, v.Opens())

	v.FailOpen(nil)
	_, err = v.Open(channel.Bitrate(12345))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidBitrate))
}
