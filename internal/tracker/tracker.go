// Package tracker runs a BinTable: it feeds readings in, sweeps stale bins
// on a cadence and reports the point of interest to a set of sinks.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/lidar.poi/internal/monitoring"
	"github.com/banshee-data/lidar.poi/internal/poi"
	"github.com/banshee-data/lidar.poi/internal/timeutil"
	"github.com/banshee-data/lidar.poi/internal/wire"
)

var logf = monitoring.Prefixed("Tracker")

// Report is one evaluation of the point of interest.
type Report struct {
	POI         poi.Snapshot `json:"poi"`
	Found       bool         `json:"found"`
	Changed     bool         `json:"changed"` // POI differs from the previous report
	Decision    poi.Decision `json:"decision"`
	Packets     int64        `json:"packets"`
	LossPercent float64      `json:"loss_percent"`
	At          time.Time    `json:"at"`
}

// Reporter receives every Report. Implementations must not block for long;
// the report loop calls them in turn.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Report) error

func (f ReporterFunc) Report(ctx context.Context, r Report) error { return f(ctx, r) }

// Config configures a Tracker.
type Config struct {
	SweepInterval    time.Duration
	SweepBinsPerTick int
	ReportInterval   time.Duration
}

// DefaultConfig sweeps a full turn of default bins about once a second and
// reports ten times a second.
func DefaultConfig() Config {
	return Config{
		SweepInterval:    10 * time.Millisecond,
		SweepBinsPerTick: 15,
		ReportInterval:   100 * time.Millisecond,
	}
}

// Tracker owns a BinTable and the loops around it.
type Tracker struct {
	table *poi.BinTable
	clock timeutil.Clock
	cfg   Config

	mu        sync.RWMutex
	reporters []Reporter
	last      Report
	reports   int64
}

// New returns a tracker for table. clock drives the loop tickers and may
// be nil for the real clock.
func New(table *poi.BinTable, clock timeutil.Clock, cfg Config) (*Tracker, error) {
	if table == nil {
		return nil, errors.New("tracker requires a bin table")
	}
	if cfg.SweepInterval <= 0 || cfg.ReportInterval <= 0 {
		return nil, errors.New("sweep and report intervals must be positive")
	}
	if cfg.SweepBinsPerTick < 1 {
		return nil, errors.New("sweep must visit at least one bin per tick")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		table: table,
		clock: clock,
		cfg:   cfg,
		last:  Report{POI: poi.ClearedSnapshot()},
	}, nil
}

// Table returns the underlying bin table.
func (t *Tracker) Table() *poi.BinTable { return t.table }

// AddReporter registers a sink. It is safe to call while Run is active.
func (t *Tracker) AddReporter(r Reporter) {
	t.mu.Lock()
	t.reporters = append(t.reporters, r)
	t.mu.Unlock()
}

// Ingest feeds one sensor reading into the table.
func (t *Tracker) Ingest(p wire.Packet) {
	t.table.Set(float64(p.Angle), float64(p.Distance), p.Quality, p.Seq)
}

// ResetStats restarts loss accounting, for use when the sender restarts.
func (t *Tracker) ResetStats() { t.table.ResetStats() }

// Last returns the most recent report.
func (t *Tracker) Last() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Reports returns how many reports have been produced.
func (t *Tracker) Reports() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reports
}

// Run sweeps and reports until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	sweep := t.clock.NewTicker(t.cfg.SweepInterval)
	defer sweep.Stop()
	report := t.clock.NewTicker(t.cfg.ReportInterval)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C():
			t.table.LoopN(t.cfg.SweepBinsPerTick)
		case <-report.C():
			t.Evaluate(ctx)
		}
	}
}

// Evaluate runs the hysteresis once and sends the result to every reporter.
// Reporter errors are logged and do not stop the others.
func (t *Tracker) Evaluate(ctx context.Context) Report {
	s, found := t.table.PointOfInterest()
	st := t.table.Stats()

	t.mu.Lock()
	r := Report{
		POI:         s,
		Found:       found,
		Changed:     s != t.last.POI,
		Decision:    st.LastDecision,
		Packets:     st.Packets,
		LossPercent: st.LossPercent,
		At:          t.clock.Now(),
	}
	t.last = r
	t.reports++
	reporters := append([]Reporter(nil), t.reporters...)
	t.mu.Unlock()

	for _, rep := range reporters {
		if err := rep.Report(ctx, r); err != nil {
			logf("reporter %T failed: %v", rep, err)
		}
	}
	return r
}
