package channel

import "io"

var ParseSLCAN = parseSLCAN

func NewSLCANChannel(port io.ReadWriteCloser, setup string) (Channel, error) {
	c, err := newSLCANChannel(port, setup, DefaultQueueSize)
	if err != nil {
		return nil, err
	}

	return c, nil
}
