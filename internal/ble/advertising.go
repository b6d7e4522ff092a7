package ble

// Default advertising intervals, in 0.625 ms units: 20-29 ms while a fresh
// peer is likely looking, 1-2.5 s afterwards to save power.
var (
	FastInterval = IntervalPair{Min: 32, Max: 47}
	SlowInterval = IntervalPair{Min: 1600, Max: 4000}
)

// DefaultFastCycles is how many advertising runs use the fast interval
// after boot or a disconnection.
const DefaultFastCycles = 5

// AdvertisingPolicy picks the interval for each advertising run. It is not
// safe for concurrent use; the controller guards it.
type AdvertisingPolicy struct {
	FastCycles int
	Fast, Slow IntervalPair
	used       int
}

// NewAdvertisingPolicy returns a policy with the default intervals.
func NewAdvertisingPolicy(fastCycles int) *AdvertisingPolicy {
	return &AdvertisingPolicy{FastCycles: fastCycles, Fast: FastInterval, Slow: SlowInterval}
}

// Next returns the interval for the next run, consuming a fast cycle while
// any remain.
func (p *AdvertisingPolicy) Next() IntervalPair {
	if p.used < p.FastCycles {
		p.used++
		return p.Fast
	}
	return p.Slow
}

// Reset restores every fast cycle.
func (p *AdvertisingPolicy) Reset() { p.used = 0 }

// Used returns how many fast cycles have been consumed.
func (p *AdvertisingPolicy) Used() int { return p.used }
