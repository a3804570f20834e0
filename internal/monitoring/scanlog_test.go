package monitoring

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

type captured struct{ lines []string }

func (c *captured) logf(format string, v ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func newCapturedLogger(level Level, clock timeutil.Clock, loss LossFunc) (*ScanLogger, *captured) {
	c := &captured{}
	s := NewScanLogger(level, clock, loss)
	s.logf = c.logf
	return s, c
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"none", LevelNone},
		{"STATS", LevelStats},
		{" lidar ", LevelLidar},
		{"coord", LevelCoord},
		{"2", LevelLidar},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, "Level(9)", Level(9).String())
	assert.Equal(t, "coord", LevelCoord.String())
}

func TestScanLogger_None(t *testing.T) {
	s, c := newCapturedLogger(LevelNone, nil, nil)
	s.Observe(ScanSample{StartBit: true, Distance: 100})
	s.Observe(ScanSample{StartBit: true, Distance: 100})
	assert.Empty(t, c.lines)
}

func TestScanLogger_Lidar(t *testing.T) {
	s, c := newCapturedLogger(LevelLidar, nil, nil)
	s.Observe(ScanSample{Seq: 7, OnTimeMillis: 1200, Type: 1, Angle: 12.5, Distance: 800, Quality: 47})
	require.Len(t, c.lines, 1)
	assert.Equal(t, "N: 7\tt: 1200\tT: 1\tA: 12.50\tD: 800.00\tS: false\tQ: 47", c.lines[0])
}

func TestScanLogger_Coord(t *testing.T) {
	s, c := newCapturedLogger(LevelCoord, nil, nil)
	s.Observe(ScanSample{Angle: 90, Distance: 1000})
	require.Len(t, c.lines, 1)
	assert.Equal(t, "X: 0.0\tY: 1000.0", c.lines[0])
}

func TestScanLogger_StatsPerRotation(t *testing.T) {
	mock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loss := func() (uint64, float64) { return 3, 1.5 }
	s, c := newCapturedLogger(LevelStats, mock, loss)

	var got []RotationSummary
	s.OnRotation(func(r RotationSummary) { got = append(got, r) })

	// the first start bit has nothing to summarise
	s.Observe(ScanSample{StartBit: true, Distance: 1000, Quality: 10})
	s.Observe(ScanSample{Distance: 2000, Quality: 20})
	s.Observe(ScanSample{Distance: 3000, Quality: 30})
	assert.Empty(t, c.lines)

	mock.Advance(100 * time.Millisecond)
	s.Observe(ScanSample{StartBit: true, Distance: 500, Quality: 40})

	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, 3, r.N)
	assert.Equal(t, 3000.0, r.MaxDist)
	assert.Equal(t, 1000.0, r.MinDist)
	assert.InDelta(t, 2000.0, r.MeanDist, 1e-9)
	assert.InDelta(t, 1000.0, r.StdDevDist, 1e-9)
	assert.InDelta(t, 20.0, r.MeanQuality, 1e-9)
	assert.Equal(t, 100*time.Millisecond, r.Cycle)
	assert.InDelta(t, 10.0, r.Hz(), 1e-9)
	assert.EqualValues(t, 3, r.Lost)
	assert.Equal(t, r, s.LastRotation())

	require.Len(t, c.lines, 1)
	assert.True(t, strings.HasPrefix(c.lines[0], "n_data: 3\t max: 3000.0"), c.lines[0])
	assert.Contains(t, c.lines[0], "lost: 3")
}

func TestScanLogger_SingleSampleRotation(t *testing.T) {
	s, _ := newCapturedLogger(LevelStats, timeutil.NewMockClock(time.Unix(0, 0)), nil)
	s.Observe(ScanSample{StartBit: true, Distance: 700})
	s.Observe(ScanSample{StartBit: true, Distance: 700})

	r := s.LastRotation()
	assert.Equal(t, 1, r.N)
	assert.Zero(t, r.StdDevDist)
	assert.Zero(t, r.Hz(), "no time passed on the mock clock")
}

func TestScanLogger_NoStartBitStaysBounded(t *testing.T) {
	s, c := newCapturedLogger(LevelStats, timeutil.NewMockClock(time.Unix(0, 0)), nil)
	for i := 0; i < 3*maxRotationSamples+5; i++ {
		s.Observe(ScanSample{Distance: float64(1000 + i%10)})
	}

	assert.Len(t, c.lines, 3)
	assert.Equal(t, maxRotationSamples, s.LastRotation().N)
	assert.Len(t, s.dists, 5)
	assert.Len(t, s.quals, 5)
	assert.LessOrEqual(t, cap(s.dists), 2*maxRotationSamples)
}

func TestScanLogger_SetLevel(t *testing.T) {
	s, c := newCapturedLogger(LevelNone, nil, nil)
	s.SetLevel(LevelLidar)
	assert.Equal(t, LevelLidar, s.Level())
	s.Observe(ScanSample{})
	assert.Len(t, c.lines, 1)
}
