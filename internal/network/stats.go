package network

import (
	"log"
	"sync"
	"time"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

// PacketStats counts datagram traffic between periodic reports.
type PacketStats struct {
	mu           sync.Mutex
	clock        timeutil.Clock
	packets      int64
	bytes        int64
	decodeErrors int64
	dropped      int64
	readings     int64
	lastReset    time.Time
}

// StatsSnapshot is one reporting interval's worth of counters.
type StatsSnapshot struct {
	Packets      int64         `json:"packets"`
	Bytes        int64         `json:"bytes"`
	DecodeErrors int64         `json:"decode_errors"`
	Dropped      int64         `json:"dropped"`
	Readings     int64         `json:"readings"`
	Interval     time.Duration `json:"interval_ns"`
}

// PacketsPerSecond returns the datagram rate over the interval.
func (s StatsSnapshot) PacketsPerSecond() float64 {
	if s.Interval <= 0 {
		return 0
	}
	return float64(s.Packets) / s.Interval.Seconds()
}

// NewPacketStats returns empty counters. clock may be nil.
func NewPacketStats(clock timeutil.Clock) *PacketStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PacketStats{clock: clock, lastReset: clock.Now()}
}

func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.bytes += int64(bytes)
}

func (ps *PacketStats) AddDecodeError() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.decodeErrors++
}

func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

func (ps *PacketStats) AddReading() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.readings++
}

// GetAndReset returns the counters gathered since the previous call and
// starts a new interval.
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	s := StatsSnapshot{
		Packets:      ps.packets,
		Bytes:        ps.bytes,
		DecodeErrors: ps.decodeErrors,
		Dropped:      ps.dropped,
		Readings:     ps.readings,
		Interval:     now.Sub(ps.lastReset),
	}
	ps.packets, ps.bytes, ps.decodeErrors, ps.dropped, ps.readings = 0, 0, 0, 0, 0
	ps.lastReset = now
	return s
}

// LogStats logs and resets the counters. Quiet intervals are not logged.
func (ps *PacketStats) LogStats() StatsSnapshot {
	s := ps.GetAndReset()
	if s.Packets == 0 && s.Dropped == 0 && s.DecodeErrors == 0 {
		return s
	}
	msg := "[Listener] %.1f packets/s, %d readings"
	args := []interface{}{s.PacketsPerSecond(), s.Readings}
	if s.DecodeErrors > 0 {
		msg += ", %d undecodable"
		args = append(args, s.DecodeErrors)
	}
	if s.Dropped > 0 {
		msg += ", %d dropped on broadcast"
		args = append(args, s.Dropped)
	}
	log.Printf(msg, args...)
	return s
}
