package timeutil

import (
	"time"
)

// Millis is a wrapping 32-bit millisecond counter, the same shape as the
// uptime counter on the sensor node. Differences are taken with unsigned
// arithmetic so a single wrap between two stamps is harmless.
type Millis uint32

// Sub returns the time elapsed from earlier to m.
func (m Millis) Sub(earlier Millis) time.Duration {
	return time.Duration(uint32(m-earlier)) * time.Millisecond
}

// Add returns m advanced by d, wrapping like the counter does.
func (m Millis) Add(d time.Duration) Millis {
	return m + Millis(uint32(d.Milliseconds()))
}

// MillisClock is the monotonic millisecond source used for every
// timestamp comparison in the tracking core.
type MillisClock interface {
	Millis() Millis
}

// UptimeClock counts milliseconds since it was created on the underlying
// Clock. It wraps after roughly 49.7 days.
type UptimeClock struct {
	clock Clock
	start time.Time
}

// NewUptimeClock starts an uptime counter on c. A nil clock uses RealClock.
func NewUptimeClock(c Clock) *UptimeClock {
	if c == nil {
		c = RealClock{}
	}
	return &UptimeClock{clock: c, start: c.Now()}
}

// Millis returns the milliseconds elapsed since the clock was created.
func (u *UptimeClock) Millis() Millis {
	return Millis(uint32(u.clock.Now().Sub(u.start).Milliseconds()))
}

// MillisFunc adapts a plain function to MillisClock.
type MillisFunc func() Millis

// Millis calls f.
func (f MillisFunc) Millis() Millis { return f() }
