package monitoring

import (
	"fmt"
	"strings"
)

// Level selects how much per-reading detail a ScanLogger emits.
type Level int

const (
	LevelNone  Level = iota // silent
	LevelStats              // one summary line per rotation
	LevelLidar              // one line per reading
	LevelCoord              // one XY line per reading
)

var levelNames = []string{"none", "stats", "lidar", "coord"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts a level name (case-insensitive) or its number.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name || s == fmt.Sprint(i) {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown log level %q", s)
}
