package poi

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

// BinTable holds one Bin per angular slot around a full turn, the last
// moved point and the tracked point of interest.
//
// Lock order is table then bin. Bin state is guarded per bin; the
// last-moved/POI pair, packet statistics and the sweep cursor are guarded by
// mu so they are always read and written as one unit.
type BinTable struct {
	params Params
	clock  timeutil.MillisClock
	bins   []Bin // allocated once, never resized

	mu             sync.RWMutex
	lastMoved      Snapshot
	poi            Snapshot
	lastDecision   Decision
	maxPOIDistance float64
	seqStarted     bool
	packets        int64
	firstSeq       uint32
	lastSeq        uint32
	expired        int64
	loopIndex      int
}

// NewBinTable allocates a table for p, reading time from clock.
func NewBinTable(p Params, clock timeutil.MillisClock) (*BinTable, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	total := p.TotalDivisions()
	t := &BinTable{
		params:         p,
		clock:          clock,
		bins:           make([]Bin, total),
		lastMoved:      ClearedSnapshot(),
		poi:            ClearedSnapshot(),
		lastDecision:   DecisionNone,
		maxPOIDistance: p.MaxPOIDistance,
	}
	for i := range t.bins {
		t.bins[i].init(float64(i)/p.DivisionsPerDegree, p.MovedFactor)
	}
	return t, nil
}

// Params returns the parameters the table was built with. MaxPOIDistance
// reflects any later SetMaxPOIDistance call.
func (t *BinTable) Params() Params {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.params
	p.MaxPOIDistance = t.maxPOIDistance
	return p
}

// Len returns the number of bins.
func (t *BinTable) Len() int { return len(t.bins) }

// Index returns the bin index for angle: round(angle*divisions), clamped to
// the table. Negative angles (and NaN) map to bin 0; angles at or past the
// last slot map to the last bin rather than wrapping.
func (t *BinTable) Index(angle float64) int {
	if !(angle >= 0) {
		return 0
	}
	i := math.Round(angle * t.params.DivisionsPerDegree)
	if i >= float64(len(t.bins)) {
		return len(t.bins) - 1
	}
	return int(i)
}

// Set records one reading and reports whether it moved its bin. A moved
// reading becomes the last moved point, carrying the unquantised angle.
//
// quality is accepted but does not influence averaging or movement.
// Readings with a non-finite angle or distance are counted as packets but
// otherwise ignored.
func (t *BinTable) Set(angle, distance float64, quality uint8, sequence uint32) bool {
	_ = quality
	now := t.clock.Millis()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.packets++
	if !t.seqStarted {
		t.firstSeq = sequence
		t.seqStarted = true
	}
	t.lastSeq = sequence

	if !isFinite(angle) || !isFinite(distance) {
		return false
	}

	b := &t.bins[t.Index(angle)]
	if !b.AddDist(distance, now) {
		return false
	}
	s, _ := b.Data(false)
	s.Angle = angle
	t.lastMoved = s
	return true
}

// Get returns the bin holding angle, optionally erasing it.
func (t *BinTable) Get(angle float64, erase bool) (Snapshot, bool) {
	return t.bins[t.Index(angle)].Data(erase)
}

// LastMoved returns the most recent moved point.
func (t *BinTable) LastMoved() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastMoved
}

// Bins returns a copy of every bin that currently holds data, in angle order.
func (t *BinTable) Bins() []Snapshot {
	out := make([]Snapshot, 0, 64)
	for i := range t.bins {
		if s, ok := t.bins[i].Data(false); ok {
			out = append(out, s)
		}
	}
	return out
}

// Loop advances the expiry sweep by one bin. A bin holding data that has
// not been refreshed within the forget window is erased. It reports whether
// the visited bin was erased.
func (t *BinTable) Loop() bool {
	now := t.clock.Millis()

	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.loopIndex
	t.loopIndex = (t.loopIndex + 1) % len(t.bins)
	if !t.bins[i].expire(now, t.params.ForgetWindow) {
		return false
	}
	t.expired++
	return true
}

// LoopN runs n sweep steps and returns how many bins were erased.
func (t *BinTable) LoopN(n int) int {
	erased := 0
	for range n {
		if t.Loop() {
			erased++
		}
	}
	return erased
}

// SetMaxPOIDistance changes the range ceiling for new POIs. Values outside
// (0, MaxDistance] are rejected and the previous value is kept.
func (t *BinTable) SetMaxPOIDistance(mm float64) error {
	if err := validateMaxPOIDistance(mm); err != nil {
		return err
	}
	t.mu.Lock()
	t.maxPOIDistance = mm
	t.mu.Unlock()
	return nil
}

// MaxPOIDistance returns the current range ceiling for new POIs.
func (t *BinTable) MaxPOIDistance() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxPOIDistance
}

// Reset empties every bin and clears the tracked points and statistics.
func (t *BinTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.bins {
		t.bins[i].Erase()
	}
	t.lastMoved = ClearedSnapshot()
	t.poi = ClearedSnapshot()
	t.lastDecision = DecisionNone
	t.resetStatsLocked()
	t.expired = 0
	t.loopIndex = 0
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
