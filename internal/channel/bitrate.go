package channel

import (
	"fmt"

	"codeberg.org/mutker/bmsmon/internal/errors"
)

// Bitrate is a nominal CAN bus speed in bit/s.
type Bitrate int

const (
	Bitrate10k  Bitrate = 10_000
	Bitrate20k  Bitrate = 20_000
	Bitrate50k  Bitrate = 50_000
	Bitrate100k Bitrate = 100_000
	Bitrate125k Bitrate = 125_000
	Bitrate250k Bitrate = 250_000
	Bitrate500k Bitrate = 500_000
	Bitrate800k Bitrate = 800_000
	Bitrate1M   Bitrate = 1_000_000

	DefaultBitrate = Bitrate250k
)

// Lawicel setup codes, S0..S8.
var slcanSpeeds = map[Bitrate]string{
	Bitrate10k:  "S0",
	Bitrate20k:  "S1",
	Bitrate50k:  "S2",
	Bitrate100k: "S3",
	Bitrate125k: "S4",
	Bitrate250k: "S5",
	Bitrate500k: "S6",
	Bitrate800k: "S7",
	Bitrate1M:   "S8",
}

// Validate rejects speeds outside the standard CAN set.
func (b Bitrate) Validate() error {
	if _, ok := slcanSpeeds[b]; !ok {
		return errors.New().WithData(errors.ErrInvalidBitrate, int(b))
	}

	return nil
}

func (b Bitrate) String() string {
	if b >= Bitrate1M && b%Bitrate1M == 0 {
		return fmt.Sprintf("%dM", b/Bitrate1M)
	}

	if b%1000 == 0 {
		return fmt.Sprintf("%dk", b/1000)
	}

	return fmt.Sprintf("%d", int(b))
}

func (b Bitrate) slcanSetup() (string, error) {
	code, ok := slcanSpeeds[b]
	if !ok {
		return "", errors.New().WithData(errors.ErrInvalidBitrate, int(b))
	}

	return code, nil
}
