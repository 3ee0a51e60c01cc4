package route

// Default criticality thresholds
const (
	DefaultCriticalDistanceKm      = 500.0
	DefaultCriticalConstraintCount = 3
)

// CriticalThresholds decides when an optimized route should be flagged to operators
type CriticalThresholds struct {
	DistanceKm      float64
	ConstraintCount int
}

// DefaultCriticalThresholds returns the thresholds used when none are configured
func DefaultCriticalThresholds() CriticalThresholds {
	return CriticalThresholds{
		DistanceKm:      DefaultCriticalDistanceKm,
		ConstraintCount: DefaultCriticalConstraintCount,
	}
}

// IsCritical reports whether a route is long or constrained enough to raise an alert
func IsCritical(res Result, constraintCount int, th CriticalThresholds) bool {
	if res.DistanceKm > th.DistanceKm {
		return true
	}
	return th.ConstraintCount > 0 && constraintCount >= th.ConstraintCount
}
