package telemetry

// State is the live telemetry aggregate. It has a single writer: the
// acquisition loop. Readers only ever see Snapshots.
type State struct {
	snap Snapshot
}

// NewState returns a state with every field unset.
func NewState() *State {
	return &State{}
}

// Apply merges one frame's fields. Fields outside the update are untouched.
func (s *State) Apply(u Update) {
	for i := 0; i < CellCount; i++ {
		if u.CellMask&(1<<uint(i)) != 0 {
			s.snap.Cells[i] = Reading[Millivolts]{Value: u.Cells[i], Set: true}
		}
	}

	for i := 0; i < TemperatureCount; i++ {
		if u.TempMask&(1<<uint(i)) != 0 {
			s.snap.Temperatures[i] = Reading[Decicelsius]{Value: u.Temperatures[i], Set: true}
		}
	}

	if u.HasPack {
		s.snap.Pack = u.Pack
		s.snap.PackSet = true
	}

	if u.HasAlarms {
		s.snap.Alarms = u.Alarms
	}

	if u.HasSerial {
		s.snap.Serial = u.Serial
		s.snap.SerialSet = true
	}

	if u.HasVersions {
		s.snap.Versions = u.Versions
		s.snap.VersionsSet = true
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	// arrays and strings copy by value
	return s.snap
}
