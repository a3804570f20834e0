package monitoring

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

// maxRotationSamples bounds the readings held for one rotation. A feed that
// never sets the start bit is summarised every maxRotationSamples readings.
const maxRotationSamples = 8192

// ScanSample is the subset of a sensor reading the scan logger reports on.
type ScanSample struct {
	Seq          uint32
	OnTimeMillis uint32
	Type         uint32
	Angle        float64
	Distance     float64
	StartBit     bool
	Quality      uint8
}

// RotationSummary describes the readings between two start bits.
type RotationSummary struct {
	N           int
	MaxDist     float64
	MinDist     float64
	MeanDist    float64
	StdDevDist  float64
	MeanQuality float64
	Cycle       time.Duration
	Lost        uint64
	LostPercent float64
}

// Hz returns the rotation rate implied by Cycle.
func (r RotationSummary) Hz() float64 {
	if r.Cycle <= 0 {
		return 0
	}
	return float64(time.Second) / float64(r.Cycle)
}

// LossFunc reports the running lost-packet tally.
type LossFunc func() (lost uint64, percent float64)

// ScanLogger writes per-reading or per-rotation diagnostics at a given Level.
type ScanLogger struct {
	mu     sync.Mutex
	level  Level
	clock  timeutil.Clock
	loss   LossFunc
	logf   func(format string, v ...interface{})
	start  time.Time
	dists  []float64
	quals  []float64
	onRot  func(RotationSummary)
	latest RotationSummary
}

// NewScanLogger returns a logger writing through Logf. clock may be nil and
// loss may be nil when no sequence tracking is available.
func NewScanLogger(level Level, clock timeutil.Clock, loss LossFunc) *ScanLogger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ScanLogger{
		level: level,
		clock: clock,
		loss:  loss,
		start: clock.Now(),
		dists: make([]float64, 0, 1024),
		quals: make([]float64, 0, 1024),
	}
}

// SetLevel changes the level at runtime.
func (s *ScanLogger) SetLevel(l Level) {
	s.mu.Lock()
	s.level = l
	s.mu.Unlock()
}

func (s *ScanLogger) Level() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// OnRotation registers a callback invoked with each completed rotation's
// summary at LevelStats. f runs with the logger locked and must not call
// back into it.
func (s *ScanLogger) OnRotation(f func(RotationSummary)) {
	s.mu.Lock()
	s.onRot = f
	s.mu.Unlock()
}

// LastRotation returns the most recent rotation summary.
func (s *ScanLogger) LastRotation() RotationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *ScanLogger) printf(format string, v ...interface{}) {
	if s.logf != nil {
		s.logf(format, v...)
		return
	}
	Logf(format, v...)
}

// Observe records one sample.
func (s *ScanLogger) Observe(sample ScanSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.level {
	case LevelNone:
		return
	case LevelLidar:
		s.printf("N: %d\tt: %d\tT: %d\tA: %.2f\tD: %.2f\tS: %t\tQ: %d",
			sample.Seq, sample.OnTimeMillis, sample.Type, sample.Angle, sample.Distance, sample.StartBit, sample.Quality)
		return
	case LevelCoord:
		rad := sample.Angle * math.Pi / 180
		s.printf("X: %.1f\tY: %.1f", sample.Distance*math.Cos(rad), sample.Distance*math.Sin(rad))
		return
	}

	if sample.StartBit || len(s.dists) >= maxRotationSamples {
		s.finishRotationLocked()
	}
	s.dists = append(s.dists, sample.Distance)
	s.quals = append(s.quals, float64(sample.Quality))
}

// finishRotationLocked summarises the readings gathered since the previous
// start bit. A start bit with nothing gathered only restarts the timer.
func (s *ScanLogger) finishRotationLocked() {
	now := s.clock.Now()
	defer func() {
		s.dists = s.dists[:0]
		s.quals = s.quals[:0]
		s.start = now
	}()
	if len(s.dists) == 0 {
		return
	}

	sum := RotationSummary{
		N:           len(s.dists),
		MaxDist:     floats.Max(s.dists),
		MinDist:     floats.Min(s.dists),
		MeanQuality: stat.Mean(s.quals, nil),
		Cycle:       now.Sub(s.start),
	}
	sum.MeanDist, sum.StdDevDist = stat.MeanStdDev(s.dists, nil)
	if math.IsNaN(sum.StdDevDist) {
		sum.StdDevDist = 0
	}
	if s.loss != nil {
		sum.Lost, sum.LostPercent = s.loss()
	}
	s.latest = sum

	s.printf("n_data: %d\t max: %.1f\t min: %.1f\t avg: %.1f\t sd: %.1f\t avg_q: %.1f\t t(ms): %d\tHz: %.2f\t lost: %d\t (%.2f%%)",
		sum.N, sum.MaxDist, sum.MinDist, sum.MeanDist, sum.StdDevDist, sum.MeanQuality,
		sum.Cycle.Milliseconds(), sum.Hz(), sum.Lost, sum.LostPercent)
	if s.onRot != nil {
		s.onRot(sum)
	}
}
