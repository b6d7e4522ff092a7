package tinygo

import (
	"time"

	"github.com/chaz8081/praxiom-core/internal/ble"
)

// minInterval picks the lower bound of the pair; the library takes a single
// interval.
func minInterval(p ble.IntervalPair) time.Duration {
	lo, _ := p.Durations()
	return lo
}
