package telemetry

import "fmt"

const (
	CellCount        = 13
	TemperatureCount = 3
)

// Millivolts is a voltage reported by the controller in 1 mV steps.
type Millivolts uint16

// Volts converts the raw reading to volts.
func (v Millivolts) Volts() float64 {
	return float64(v) * 0.001
}

func (v Millivolts) String() string {
	return fmt.Sprintf("%.3fV", v.Volts())
}

// Decicelsius is a temperature reported in 0.1 °C steps.
type Decicelsius uint16

// Celsius converts the raw reading to degrees Celsius.
func (t Decicelsius) Celsius() float64 {
	return float64(t) * 0.1
}

func (t Decicelsius) String() string {
	return fmt.Sprintf("%.1f°C", t.Celsius())
}

// Reading is an optional value: Set is false until the owning frame arrives.
type Reading[T Millivolts | Decicelsius] struct {
	Value T
	Set   bool
}

// PackStats are the aggregates computed by the controller itself.
type PackStats struct {
	Sum     Millivolts
	Min     Millivolts
	Max     Millivolts
	Battery Millivolts
}

// Alarms mirrors the alarm flag frame.
type Alarms struct {
	VMin           bool
	VMax           bool
	TMin           bool
	TMax           bool
	VBatt          bool
	SerialMismatch bool
}

// Any reports whether at least one alarm is raised.
func (a Alarms) Any() bool {
	return a.VMin || a.VMax || a.TMin || a.TMax || a.VBatt || a.SerialMismatch
}

// Versions holds the dotted hardware and software revisions.
type Versions struct {
	Hardware string
	Software string
}

// Snapshot is an immutable copy of the telemetry state. It holds no
// references into the live state and can be retained freely.
type Snapshot struct {
	Cells        [CellCount]Reading[Millivolts]
	Temperatures [TemperatureCount]Reading[Decicelsius]
	Pack         PackStats
	PackSet      bool
	Alarms       Alarms
	Serial       string
	SerialSet    bool
	Versions     Versions
	VersionsSet  bool
}

// Update carries every field decoded from one frame. Only the groups
// flagged by the masks and Has* fields are applied.
type Update struct {
	Cells    [CellCount]Millivolts
	CellMask uint16

	Temperatures [TemperatureCount]Decicelsius
	TempMask     uint8

	Pack    PackStats
	HasPack bool

	Alarms    Alarms
	HasAlarms bool

	Serial    string
	HasSerial bool

	Versions    Versions
	HasVersions bool
}

// Empty reports whether the update touches no field.
func (u Update) Empty() bool {
	return u.CellMask == 0 && u.TempMask == 0 &&
		!u.HasPack && !u.HasAlarms && !u.HasSerial && !u.HasVersions
}

// SetCell records cell i (0-based) in the update.
func (u *Update) SetCell(i int, v Millivolts) {
	u.Cells[i] = v
	u.CellMask |= 1 << uint(i)
}

// SetTemperature records sensor i (0-based) in the update.
func (u *Update) SetTemperature(i int, t Decicelsius) {
	u.Temperatures[i] = t
	u.TempMask |= 1 << uint(i)
}
