package poi

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultDivisionsPerDegree = 4.0                     // 0.25° bins
	DefaultMovedFactor        = 0.05                    // 5%, i.e. 5 cm at 1 m
	DefaultForgetWindow       = 3000 * time.Millisecond // forget a point not seen for this long
	DefaultTransientWindow    = 200 * time.Millisecond  // dwell before a far candidate may replace the POI
	DefaultAngularNear        = 3.0                     // degrees
	DefaultRadialNear         = 200.0                   // mm
	DefaultMaxPOIDistance     = 5000.0                  // mm

	// MaxDistance is the absolute ceiling for MaxPOIDistance in mm.
	MaxDistance = 15000.0
)

// Params configures a BinTable.
type Params struct {
	// DivisionsPerDegree sets the angular resolution. 360*DivisionsPerDegree
	// must be a whole number of bins.
	DivisionsPerDegree float64

	// MovedFactor is the relative deviation from a bin's running average
	// above which a reading is treated as a new object at that angle.
	MovedFactor float64

	// ForgetWindow is how long a bin or POI may go unrefreshed before it
	// is considered stale.
	ForgetWindow time.Duration

	// TransientWindow is the minimum age of a far candidate's last move
	// before it may displace a fresh POI.
	TransientWindow time.Duration

	// AngularNear (degrees) and RadialNear (mm) define when a candidate is
	// the same object as the current POI.
	AngularNear float64
	RadialNear  float64

	// MaxPOIDistance (mm) is the range beyond which a moved point is not
	// trusted as a new POI.
	MaxPOIDistance float64
}

// DefaultParams returns the stock tuning for an RPLIDAR class sensor.
func DefaultParams() Params {
	return Params{
		DivisionsPerDegree: DefaultDivisionsPerDegree,
		MovedFactor:        DefaultMovedFactor,
		ForgetWindow:       DefaultForgetWindow,
		TransientWindow:    DefaultTransientWindow,
		AngularNear:        DefaultAngularNear,
		RadialNear:         DefaultRadialNear,
		MaxPOIDistance:     DefaultMaxPOIDistance,
	}
}

// TotalDivisions returns the number of bins covering a full turn.
func (p Params) TotalDivisions() int {
	return int(math.Round(360 * p.DivisionsPerDegree))
}

// Validate checks that every parameter is in range.
func (p Params) Validate() error {
	if !(p.DivisionsPerDegree > 0) || math.IsInf(p.DivisionsPerDegree, 0) {
		return fmt.Errorf("DivisionsPerDegree must be positive, got %f", p.DivisionsPerDegree)
	}
	total := 360 * p.DivisionsPerDegree
	if math.Abs(total-math.Round(total)) > 1e-9 || math.Round(total) < 1 {
		return fmt.Errorf("360*DivisionsPerDegree must be a whole number of bins, got %f", total)
	}
	if !(p.MovedFactor > 0) {
		return fmt.Errorf("MovedFactor must be positive, got %f", p.MovedFactor)
	}
	if p.ForgetWindow <= 0 {
		return fmt.Errorf("ForgetWindow must be positive, got %v", p.ForgetWindow)
	}
	if p.TransientWindow < 0 {
		return fmt.Errorf("TransientWindow must be non-negative, got %v", p.TransientWindow)
	}
	if p.AngularNear < 0 || p.AngularNear > 180 {
		return fmt.Errorf("AngularNear must be in [0, 180], got %f", p.AngularNear)
	}
	if p.RadialNear < 0 {
		return fmt.Errorf("RadialNear must be non-negative, got %f", p.RadialNear)
	}
	if err := validateMaxPOIDistance(p.MaxPOIDistance); err != nil {
		return err
	}
	return nil
}

func validateMaxPOIDistance(mm float64) error {
	if !(mm > 0) || mm > MaxDistance {
		return fmt.Errorf("MaxPOIDistance must be in (0, %.0f] mm, got %f", MaxDistance, mm)
	}
	return nil
}
