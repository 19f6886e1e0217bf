package telemetry

// Report is the JSON form of a Snapshot handed to downstream consumers.
// Unset readings are encoded as null.
type Report struct {
	Cells        []*float64  `json:"cells"`
	Temperatures []*float64  `json:"temperatures"`
	Pack         *PackReport `json:"pack"`
	Alarms       AlarmReport `json:"alarms"`
	Serial       *string     `json:"serial_number"`
	Hardware     *string     `json:"hw_version"`
	Software     *string     `json:"sw_version"`
}

type PackReport struct {
	Sum     float64 `json:"pack_sum"`
	Min     float64 `json:"vmin"`
	Max     float64 `json:"vmax"`
	Battery float64 `json:"vbatt"`
}

type AlarmReport struct {
	VMin           bool `json:"vmin"`
	VMax           bool `json:"vmax"`
	TMin           bool `json:"tmin"`
	TMax           bool `json:"tmax"`
	VBatt          bool `json:"vbatt"`
	SerialMismatch bool `json:"sn_error"`
}

// Report converts the snapshot for serialization.
func (s Snapshot) Report() Report {
	r := Report{
		Cells:        make([]*float64, CellCount),
		Temperatures: make([]*float64, TemperatureCount),
		Alarms:       AlarmReport(s.Alarms),
	}

	for i, c := range s.Cells {
		if c.Set {
			v := c.Value.Volts()
			r.Cells[i] = &v
		}
	}

	for i, t := range s.Temperatures {
		if t.Set {
			v := t.Value.Celsius()
			r.Temperatures[i] = &v
		}
	}

	if s.PackSet {
		r.Pack = &PackReport{
			Sum:     s.Pack.Sum.Volts(),
			Min:     s.Pack.Min.Volts(),
			Max:     s.Pack.Max.Volts(),
			Battery: s.Pack.Battery.Volts(),
		}
	}

	if s.SerialSet {
		serial := s.Serial
		r.Serial = &serial
	}

	if s.VersionsSet {
		hw, sw := s.Versions.Hardware, s.Versions.Software
		r.Hardware = &hw
		r.Software = &sw
	}

	return r
}
