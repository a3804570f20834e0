package poi

import (
	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

const (
	// NoAngle marks a Snapshot that holds no data.
	NoAngle = -1.0
	// FarDistance is the distance carried by a cleared Snapshot.
	FarDistance = 1.0e9
)

// Snapshot is a copy of one point's state at read time.
type Snapshot struct {
	Angle     float64         `json:"angle"`         // degrees; < 0 means no data
	Distance  float64         `json:"distance"`      // averaged, mm
	TimesSeen uint32          `json:"times_seen"`    // samples in the average
	LastSeen  timeutil.Millis `json:"last_seen_ms"`  // last sample folded in
	LastMoved timeutil.Millis `json:"last_moved_ms"` // last time the average restarted
}

// ClearedSnapshot returns the "no data" value.
func ClearedSnapshot() Snapshot {
	return Snapshot{Angle: NoAngle, Distance: FarDistance}
}

// Valid reports whether s carries data.
func (s Snapshot) Valid() bool {
	return s.Angle >= 0
}
