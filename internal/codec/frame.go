// Package codec maps raw BMS bus frames to telemetry updates.
package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxPayload is the classic CAN data length limit.
const MaxPayload = 8

// Frame is one message read from the bus.
type Frame struct {
	ID       uint32
	Extended bool
	Data     []byte
}

func (f Frame) String() string {
	id := fmt.Sprintf("%03X", f.ID)
	if f.Extended {
		id = fmt.Sprintf("%08X", f.ID)
	}

	return id + "#" + strings.ToUpper(hex.EncodeToString(f.Data))
}
