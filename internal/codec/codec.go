package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"codeberg.org/mutker/bmsmon/internal/telemetry"
)

// Frame identifiers broadcast by the controller.
const (
	IDCells1       uint32 = 0x200 // V4..V1
	IDCells2       uint32 = 0x201 // V8..V5
	IDCells3       uint32 = 0x202 // V12..V9
	IDCells4       uint32 = 0x203 // V13 in the last word
	IDTemperatures uint32 = 0x204
	IDPackStats    uint32 = 0x205
	IDAlarms       uint32 = 0x206
	IDSerial       uint32 = 0x300
	IDVersions     uint32 = 0x301
)

type decoder struct {
	minLen int
	decode func(p []byte) telemetry.Update
}

var decoders = map[uint32]decoder{
	IDCells1:       {8, cellGroup(0)},
	IDCells2:       {8, cellGroup(4)},
	IDCells3:       {8, cellGroup(8)},
	IDCells4:       {8, lastCell},
	IDTemperatures: {8, temperatures},
	IDPackStats:    {8, packStats},
	IDAlarms:       {3, alarms},
	IDSerial:       {1, serial},
	IDVersions:     {8, versions},
}

// Decode returns the update carried by f. ok is false for unknown
// identifiers, extended frames and payloads shorter than the layout needs.
func Decode(f Frame) (u telemetry.Update, ok bool) {
	if f.Extended {
		return u, false
	}

	d, found := decoders[f.ID]
	if !found || len(f.Data) < d.minLen {
		return u, false
	}

	return d.decode(f.Data), true
}

// Known reports whether id is one of the controller's identifiers.
func Known(id uint32) bool {
	_, ok := decoders[id]
	return ok
}

func word(p []byte, i int) uint16 {
	return binary.BigEndian.Uint16(p[i*2:])
}

// cellGroup decodes four cells listed highest first: word0 is cell base+4.
func cellGroup(base int) func([]byte) telemetry.Update {
	return func(p []byte) telemetry.Update {
		var u telemetry.Update
		for w := 0; w < 4; w++ {
			u.SetCell(base+3-w, telemetry.Millivolts(word(p, w)))
		}
		return u
	}
}

func lastCell(p []byte) telemetry.Update {
	var u telemetry.Update
	u.SetCell(telemetry.CellCount-1, telemetry.Millivolts(word(p, 3)))
	return u
}

// word0 is unused; word1..word3 carry T3..T1.
func temperatures(p []byte) telemetry.Update {
	var u telemetry.Update
	for w := 1; w < 4; w++ {
		u.SetTemperature(telemetry.TemperatureCount-w, telemetry.Decicelsius(word(p, w)))
	}
	return u
}

func packStats(p []byte) telemetry.Update {
	return telemetry.Update{
		Pack: telemetry.PackStats{
			Sum:     telemetry.Millivolts(word(p, 0)),
			Min:     telemetry.Millivolts(word(p, 1)),
			Max:     telemetry.Millivolts(word(p, 2)),
			Battery: telemetry.Millivolts(word(p, 3)),
		},
		HasPack: true,
	}
}

func alarms(p []byte) telemetry.Update {
	return telemetry.Update{
		Alarms: telemetry.Alarms{
			VMin:           p[0]&0x01 != 0,
			VMax:           p[0]&0x02 != 0,
			TMin:           p[1]&0x01 != 0,
			TMax:           p[1]&0x02 != 0,
			VBatt:          p[2]&0x01 != 0,
			SerialMismatch: p[2]&0x02 != 0,
		},
		HasAlarms: true,
	}
}

func serial(p []byte) telemetry.Update {
	return telemetry.Update{
		Serial:    strings.ToUpper(hex.EncodeToString(p)),
		HasSerial: true,
	}
}

func versions(p []byte) telemetry.Update {
	return telemetry.Update{
		Versions: telemetry.Versions{
			Hardware: fmt.Sprintf("%d.%d", p[3], p[4]),
			Software: fmt.Sprintf("%d.%d.%d", p[5], p[6], p[7]),
		},
		HasVersions: true,
	}
}
