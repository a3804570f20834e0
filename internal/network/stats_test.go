package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

func TestPacketStats_GetAndReset(t *testing.T) {
	mock := timeutil.NewMockClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	ps := NewPacketStats(mock)

	for range 20 {
		ps.AddPacket(34)
	}
	ps.AddDecodeError()
	ps.AddDropped()
	ps.AddReading()
	mock.Advance(2 * time.Second)

	s := ps.GetAndReset()
	assert.EqualValues(t, 20, s.Packets)
	assert.EqualValues(t, 680, s.Bytes)
	assert.EqualValues(t, 1, s.DecodeErrors)
	assert.EqualValues(t, 1, s.Dropped)
	assert.EqualValues(t, 1, s.Readings)
	assert.Equal(t, 2*time.Second, s.Interval)
	assert.InDelta(t, 10.0, s.PacketsPerSecond(), 1e-9)

	assert.Equal(t, StatsSnapshot{}, ps.GetAndReset(), "counters restart and no time has passed")
}

func TestPacketStats_LogStats(t *testing.T) {
	ps := NewPacketStats(nil)
	ps.AddPacket(34)
	s := ps.LogStats()
	assert.EqualValues(t, 1, s.Packets)
	assert.Zero(t, ps.LogStats().Packets)
	assert.Zero(t, StatsSnapshot{Packets: 5}.PacketsPerSecond())
}
