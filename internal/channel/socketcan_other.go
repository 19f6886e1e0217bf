//go:build !linux

package channel

import "codeberg.org/mutker/bmsmon/internal/errors"

// SocketCAN is only available on Linux.
type SocketCAN struct {
	Interface string
	QueueSize int
}

func NewSocketCAN(iface string) *SocketCAN {
	return &SocketCAN{Interface: iface, QueueSize: DefaultQueueSize}
}

func (s *SocketCAN) Open(Bitrate) (Channel, error) {
	return nil, errors.New().WithMessage(errors.ErrUnsupportedBus, "socketcan requires Linux")
}
