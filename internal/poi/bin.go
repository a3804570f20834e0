package poi

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

// Bin keeps a running average distance for one angular slot.
// The zero value is an empty bin with a zero movement factor; use NewBin.
type Bin struct {
	mu          sync.Mutex
	angle       float64 // slot centre, degrees
	movedFactor float64

	sum       float64
	count     uint32
	lastSeen  timeutil.Millis
	lastMoved timeutil.Millis
}

// NewBin returns an empty bin for the slot centred on angle.
func NewBin(angle, movedFactor float64) *Bin {
	b := &Bin{}
	b.init(angle, movedFactor)
	return b
}

func (b *Bin) init(angle, movedFactor float64) {
	b.angle = angle
	b.movedFactor = movedFactor
}

// AddDist records a distance observed at now and reports whether it
// represents a new object at this angle.
//
// The first sample in an empty bin is never a move. A sample deviating from
// the average by more than the movement factor restarts the average from
// that sample alone.
func (b *Bin) AddDist(d float64, now timeutil.Millis) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	moved := false
	if b.count > 0 && b.deviates(d) {
		b.sum = 0
		b.count = 0
		b.lastMoved = now
		moved = true
	}
	b.sum += d
	b.count++
	b.lastSeen = now
	return moved
}

// deviates must be called with b.mu held and b.count > 0.
func (b *Bin) deviates(d float64) bool {
	avg := b.sum / float64(b.count)
	if avg == 0 {
		// Relative deviation from zero is unbounded for any other value.
		return d != 0
	}
	return math.Abs(d-avg)/math.Abs(avg) > b.movedFactor
}

// Data copies the bin into a Snapshot and reports whether it held data.
// An empty bin yields ClearedSnapshot. When erase is set the bin is cleared
// in the same critical section as the read.
func (b *Bin) Data(erase bool) (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hasData := b.count > 0
	s := ClearedSnapshot()
	if hasData {
		s = Snapshot{
			Angle:     b.angle,
			Distance:  b.sum / float64(b.count),
			TimesSeen: b.count,
			LastSeen:  b.lastSeen,
			LastMoved: b.lastMoved,
		}
	}
	if erase {
		b.eraseLocked()
	}
	return s, hasData
}

// Erase returns the bin to the empty state.
func (b *Bin) Erase() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eraseLocked()
}

func (b *Bin) eraseLocked() {
	b.count = 0
	b.sum = 0
	b.lastSeen = 0
	b.lastMoved = 0
}

// expire erases the bin if it holds data that has not been refreshed for
// longer than forget. It reports whether the bin was erased.
func (b *Bin) expire(now timeutil.Millis, forget time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 || now.Sub(b.lastSeen) <= forget {
		return false
	}
	b.eraseLocked()
	return true
}
