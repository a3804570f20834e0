package poi

import (
	"math"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
)

// Decision names the rule that settled the last PointOfInterest call.
type Decision string

const (
	DecisionNone      Decision = "none"      // no POI and nothing has moved
	DecisionFirst     Decision = "first"     // first moved point adopted
	DecisionTooFar    Decision = "too_far"   // candidate beyond MaxPOIDistance, POI kept
	DecisionNear      Decision = "near"      // candidate is the same object, POI refreshed
	DecisionForgotten Decision = "forgotten" // POI went stale, candidate adopted
	DecisionSettled   Decision = "settled"   // candidate outlived the transient window, adopted
	DecisionHold      Decision = "hold"      // candidate too recent, POI kept
)

// PointOfInterest returns the tracked point, updating it from the last moved
// point. Rules are evaluated in order and the first match wins:
//
//  1. no POI yet: adopt the last moved point if there is one
//  2. candidate beyond MaxPOIDistance: keep the POI
//  3. candidate near the POI in angle and range: adopt it
//  4. POI not refreshed within the forget window: adopt the candidate
//  5. candidate's last move older than the transient window: adopt it
//  6. otherwise keep the POI
//
// It reports false only when there is neither a POI nor a moved point.
func (t *BinTable) PointOfInterest() (Snapshot, bool) {
	now := t.clock.Millis()

	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.decide(now)
	t.lastDecision = d
	switch d {
	case DecisionNone:
		return ClearedSnapshot(), false
	case DecisionFirst, DecisionNear, DecisionForgotten, DecisionSettled:
		t.poi = t.lastMoved
	}
	return t.poi, true
}

// decide must be called with t.mu held.
func (t *BinTable) decide(now timeutil.Millis) Decision {
	lmp := t.lastMoved
	if !t.poi.Valid() {
		if !lmp.Valid() {
			return DecisionNone
		}
		return DecisionFirst
	}
	switch {
	case lmp.Distance > t.maxPOIDistance:
		return DecisionTooFar
	case t.near(t.poi, lmp):
		return DecisionNear
	case now.Sub(t.poi.LastSeen) > t.params.ForgetWindow:
		return DecisionForgotten
	case now.Sub(lmp.LastMoved) > t.params.TransientWindow:
		return DecisionSettled
	}
	return DecisionHold
}

// near reports whether b lies within the near-angle and near-distance
// thresholds of a. The angle comparison wraps at 0°, so 359.5° and 1° are
// near; the sensor node firmware compares raw angles and treats them as far.
func (t *BinTable) near(a, b Snapshot) bool {
	return angularDiff(a.Angle, b.Angle) <= t.params.AngularNear &&
		math.Abs(a.Distance-b.Distance) <= t.params.RadialNear
}

// angularDiff returns the shortest separation between two bearings, so 359°
// and 1° are 2° apart.
func angularDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
