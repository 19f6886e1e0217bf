package main

import (
	"codeberg.org/mutker/bmsmon/internal/logger"
	"codeberg.org/mutker/bmsmon/internal/publish"
	"codeberg.org/mutker/bmsmon/internal/telemetry"
)

// monitor is the engine observer. It runs on the acquisition goroutine, so it
// only logs transitions and hands snapshots to the publisher.
type monitor struct {
	log       logger.Logger
	publisher publish.Publisher

	alarms     telemetry.Alarms
	serial     string
	versionsOK bool
}

func newMonitor(log logger.Logger, p publish.Publisher) *monitor {
	return &monitor{log: log, publisher: p}
}

func (m *monitor) observe(snap telemetry.Snapshot) {
	if snap.SerialSet && snap.Serial != m.serial {
		m.log.Info().Str("serial", snap.Serial).Msg("Controller identified")
		m.serial = snap.Serial
	}

	if snap.VersionsSet && !m.versionsOK {
		m.log.Info().
			Str("hardware", snap.Versions.Hardware).
			Str("software", snap.Versions.Software).
			Msg("Controller versions")
		m.versionsOK = true
	}

	if snap.Alarms != m.alarms {
		ev := m.log.Info()
		if snap.Alarms.Any() {
			ev = m.log.Warn()
		}
		ev.Bool("vmin", snap.Alarms.VMin).
			Bool("vmax", snap.Alarms.VMax).
			Bool("tmin", snap.Alarms.TMin).
			Bool("tmax", snap.Alarms.TMax).
			Bool("vbatt", snap.Alarms.VBatt).
			Bool("sn_error", snap.Alarms.SerialMismatch).
			Msg("Alarm state changed")
		m.alarms = snap.Alarms
	}

	m.publisher.Observe(snap)
}
