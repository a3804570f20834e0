package poi

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

func newTestTable(t *testing.T) (*BinTable, *timeutil.MockClock) {
	t.Helper()
	mock := timeutil.NewMockClock(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	table, err := NewBinTable(DefaultParams(), timeutil.NewUptimeClock(mock))
	require.NoError(t, err)
	return table, mock
}

// move plants a moved point at angle/distance by first seeding the bin with
// a distance far from the target.
func move(t *testing.T, table *BinTable, angle, distance float64) {
	t.Helper()
	table.Set(angle, distance*3+1000, 15, 0)
	require.True(t, table.Set(angle, distance, 15, 0), "expected a move at %v°", angle)
}

func TestNewBinTable(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	assert.Equal(t, 1440, table.Len())
	assert.Empty(t, table.Bins())
	assert.False(t, table.LastMoved().Valid())
}

func TestNewBinTable_Errors(t *testing.T) {
	t.Parallel()

	clock := timeutil.MillisFunc(func() timeutil.Millis { return 0 })

	p := DefaultParams()
	p.DivisionsPerDegree = 0
	_, err := NewBinTable(p, clock)
	assert.Error(t, err)

	p = DefaultParams()
	p.DivisionsPerDegree = 0.3333
	_, err = NewBinTable(p, clock)
	assert.Error(t, err, "360*0.3333 is not a whole number of bins")

	_, err = NewBinTable(DefaultParams(), nil)
	assert.Error(t, err)
}

func TestBinTable_Index(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	tests := []struct {
		angle float64
		want  int
	}{
		{0, 0},
		{1.1, 4},
		{0.125, 1}, // round half away from zero
		{-5, 0},
		{math.NaN(), 0},
		{359.75, 1439},
		{359.9, 1439},
		{360, 1439},
		{720, 1439},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Index(tt.angle), "angle %v", tt.angle)
	}
}

func TestBinTable_SetAndGet(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	assert.False(t, table.Set(90, 1200, 47, 1))
	mock.Advance(10 * time.Millisecond)
	assert.False(t, table.Set(90.1, 1210, 47, 2), "same bin, within threshold")

	s, ok := table.Get(90, false)
	require.True(t, ok)
	want := Snapshot{Angle: 90, Distance: 1205, TimesSeen: 2, LastSeen: 10, LastMoved: 0}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	_, ok = table.Get(91, false)
	assert.False(t, ok)
}

func TestBinTable_GetErase(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	table.Set(45, 800, 10, 1)

	_, ok := table.Get(45, true)
	require.True(t, ok)
	_, ok = table.Get(45, false)
	assert.False(t, ok)
}

func TestBinTable_SetRecordsLastMoved(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	table.Set(10.1, 2000, 10, 1)
	mock.Advance(50 * time.Millisecond)
	assert.True(t, table.Set(10.1, 500, 10, 2))

	lmp := table.LastMoved()
	assert.Equal(t, 10.1, lmp.Angle, "last moved point keeps the raw angle")
	assert.Equal(t, 500.0, lmp.Distance)
	assert.EqualValues(t, 50, lmp.LastMoved)
	assert.EqualValues(t, 1, lmp.TimesSeen)
}

func TestBinTable_SetNonFinite(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	assert.False(t, table.Set(math.NaN(), 100, 0, 1))
	assert.False(t, table.Set(10, math.Inf(1), 0, 2))
	assert.Empty(t, table.Bins())
	assert.EqualValues(t, 2, table.Packets(), "rejected readings still count as packets")
}

func TestBinTable_Bins(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	table.Set(200, 3000, 0, 1)
	table.Set(20, 1000, 0, 2)

	bins := table.Bins()
	require.Len(t, bins, 2)
	assert.Equal(t, 20.0, bins[0].Angle)
	assert.Equal(t, 200.0, bins[1].Angle)
}

func TestBinTable_LoopExpiresStaleBins(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	table.Set(0, 1000, 0, 1)
	table.Set(180, 1000, 0, 2)

	assert.Zero(t, table.LoopN(table.Len()), "fresh bins are kept")

	mock.Advance(2 * time.Second)
	table.Set(180, 1000, 0, 3)
	mock.Advance(1500 * time.Millisecond)

	assert.Equal(t, 1, table.LoopN(table.Len()))
	_, ok := table.Get(0, false)
	assert.False(t, ok, "bin at 0° should have been forgotten")
	_, ok = table.Get(180, false)
	assert.True(t, ok, "bin at 180° was refreshed")
	assert.EqualValues(t, 1, table.Stats().ExpiredBins)
}

func TestBinTable_LoopCursorWraps(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	table.Set(0, 1000, 0, 1)
	mock.Advance(4 * time.Second)
	assert.Equal(t, 1, table.LoopN(table.Len()))

	// a full pass leaves the cursor back on bin 0
	table.Set(0, 1000, 0, 2)
	mock.Advance(4 * time.Second)
	assert.True(t, table.Loop())
}

func TestBinTable_SetMaxPOIDistance(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	require.NoError(t, table.SetMaxPOIDistance(8000))
	assert.Equal(t, 8000.0, table.MaxPOIDistance())

	assert.Error(t, table.SetMaxPOIDistance(0))
	assert.Error(t, table.SetMaxPOIDistance(-1))
	assert.Error(t, table.SetMaxPOIDistance(MaxDistance+1))
	assert.Error(t, table.SetMaxPOIDistance(math.NaN()))
	assert.Equal(t, 8000.0, table.MaxPOIDistance(), "rejected values keep the old ceiling")
	assert.Equal(t, 8000.0, table.Params().MaxPOIDistance)
}

func TestBinTable_Reset(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	move(t, table, 10, 500)
	_, found := table.PointOfInterest()
	require.True(t, found)

	table.Reset()
	assert.Empty(t, table.Bins())
	assert.False(t, table.LastMoved().Valid())
	_, found = table.PointOfInterest()
	assert.False(t, found)
	assert.Zero(t, table.Packets())
}

func TestBinTable_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 500 {
				angle := float64((i*7+w*90)%360) + 0.3
				table.Set(angle, float64(500+(i%5)*300), 10, uint32(i))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 500 {
			table.PointOfInterest()
			table.Loop()
			table.Bins()
			table.Stats()
			mock.Advance(time.Millisecond)
		}
	}()
	wg.Wait()

	assert.EqualValues(t, 2000, table.Packets())
	for _, s := range table.Bins() {
		assert.Greater(t, s.TimesSeen, uint32(0))
	}
}
