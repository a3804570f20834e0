package poi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePOI(t *testing.T, table *BinTable, angle, distance float64) Snapshot {
	t.Helper()
	s, found := table.PointOfInterest()
	require.True(t, found)
	assert.Equal(t, angle, s.Angle)
	assert.Equal(t, distance, s.Distance)
	return s
}

func TestPointOfInterest_NoneWithoutMovement(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	table.Set(10, 500, 0, 1) // first sample never moves

	s, found := table.PointOfInterest()
	assert.False(t, found)
	assert.False(t, s.Valid())
	assert.Equal(t, DecisionNone, table.Stats().LastDecision)
}

func TestPointOfInterest_FirstMovedPoint(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	move(t, table, 10, 500)

	requirePOI(t, table, 10, 500)
	assert.Equal(t, DecisionFirst, table.Stats().LastDecision)

	// repeated queries without new movement keep returning it
	requirePOI(t, table, 10, 500)
}

func TestPointOfInterest_FirstIgnoresRange(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	move(t, table, 30, 9000)
	requirePOI(t, table, 30, 9000)
}

func TestPointOfInterest_NearUpdates(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	move(t, table, 10, 500)
	requirePOI(t, table, 10, 500)

	mock.Advance(20 * time.Millisecond)
	move(t, table, 12, 550)
	s := requirePOI(t, table, 12, 550)
	assert.EqualValues(t, 20, s.LastMoved)
	assert.Equal(t, DecisionNear, table.Stats().LastDecision)
}

func TestPointOfInterest_NearAcrossZero(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t)
	move(t, table, 359.5, 500)
	requirePOI(t, table, 359.5, 500)

	move(t, table, 1, 450)
	requirePOI(t, table, 1, 450)
	assert.Equal(t, DecisionNear, table.Stats().LastDecision)
}

func TestPointOfInterest_TransientCandidateHeld(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	move(t, table, 10, 500)
	requirePOI(t, table, 10, 500)

	mock.Advance(100 * time.Millisecond)
	move(t, table, 90, 1000)
	requirePOI(t, table, 10, 500)
	assert.Equal(t, DecisionHold, table.Stats().LastDecision)

	mock.Advance(200 * time.Millisecond)
	requirePOI(t, table, 10, 500) // exactly at the window is still transient

	mock.Advance(50 * time.Millisecond)
	requirePOI(t, table, 90, 1000)
	assert.Equal(t, DecisionSettled, table.Stats().LastDecision)
}

func TestPointOfInterest_TooFarNeverDisplaces(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	move(t, table, 10, 500)
	requirePOI(t, table, 10, 500)

	move(t, table, 90, 6000)
	mock.Advance(10 * time.Second)
	requirePOI(t, table, 10, 500)
	assert.Equal(t, DecisionTooFar, table.Stats().LastDecision)

	require.NoError(t, table.SetMaxPOIDistance(7000))
	requirePOI(t, table, 90, 6000)
}

func TestPointOfInterest_StalePOIForgotten(t *testing.T) {
	t.Parallel()

	table, mock := newTestTable(t)
	move(t, table, 10, 500)
	requirePOI(t, table, 10, 500)

	mock.Advance(3100 * time.Millisecond)
	move(t, table, 200, 2500)
	requirePOI(t, table, 200, 2500)
	assert.Equal(t, DecisionForgotten, table.Stats().LastDecision)
}

func TestAngularDiff(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 12, 2},
		{12, 10, 2},
		{359, 1, 2},
		{0, 180, 180},
		{90, 270, 180},
		{0, 359.75, 0.25},
		{45, 45, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, angularDiff(tt.a, tt.b), 1e-9, "%v vs %v", tt.a, tt.b)
	}
}
