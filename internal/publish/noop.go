package publish

import "codeberg.org/mutker/bmsmon/internal/telemetry"

type noopPublisher struct{}

// NewNoop returns a Publisher that drops everything. It is used when
// publishing is disabled.
func NewNoop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Observe(telemetry.Snapshot) {}

func (noopPublisher) Close() error { return nil }
