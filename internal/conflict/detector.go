package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"skyroute/internal/geo"
	"skyroute/internal/models"
)

// Default detection thresholds
const (
	DefaultProximityKm          = 5.0
	DefaultCriticalProximityKm  = 2.0
	DefaultZoneCriticalRatio    = 0.5
	DefaultMaxPositionJitterDeg = 0.01
	DefaultMaxAltitudeJitterFt  = 100.0
)

// Thresholds holds the tunable detection and simulation limits
type Thresholds struct {
	ProximityKm         float64 // pairs closer than this are in conflict
	CriticalProximityKm float64 // pairs closer than this are critical
	ZoneCriticalRatio   float64 // intrusions closer than radius*ratio to the center are critical

	MaxPositionJitterDeg float64 // simulated lat/lon drift per refresh
	MaxAltitudeJitterFt  float64 // simulated altitude drift per refresh
}

// DefaultThresholds returns the built-in detection limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProximityKm:          DefaultProximityKm,
		CriticalProximityKm:  DefaultCriticalProximityKm,
		ZoneCriticalRatio:    DefaultZoneCriticalRatio,
		MaxPositionJitterDeg: DefaultMaxPositionJitterDeg,
		MaxAltitudeJitterFt:  DefaultMaxAltitudeJitterFt,
	}
}

// Source supplies live aircraft states
type Source interface {
	Fetch(ctx context.Context) ([]models.Aircraft, error)
	Name() string
}

// Result is the outcome of one detection pass
type Result struct {
	Conflicts []models.ConflictRecord
	Alerts    []models.Alert
	Source    string // telemetry source name, or "simulation"
}

// Statistics summarizes the current traffic picture
type Statistics struct {
	TotalFlights     int
	PassengerFlights int
	CargoFlights     int
	UnknownFlights   int
	KnownConflicts   int
	Zones            int
}

// Detector tracks a fleet of aircraft and reports new separation losses and zone intrusions.
// Every conflict identity is reported once for the lifetime of the detector, even if the
// condition clears and later recurs.
type Detector struct {
	pollMu     sync.Mutex // serializes fetch-and-apply cycles so a slow fetch never overwrites a newer fleet
	mu         sync.Mutex
	aircraft   []models.Aircraft
	zones      []models.RestrictedZone
	known      map[string]struct{}
	thresholds Thresholds
	source     Source
	rng        *rand.Rand
	now        func() time.Time
}

// Option configures a Detector
type Option func(*Detector)

// WithSource sets the telemetry source used by RefreshPositions
func WithSource(src Source) Option {
	return func(d *Detector) {
		d.source = src
	}
}

// WithRand sets the random source used by the motion simulation
func WithRand(r *rand.Rand) Option {
	return func(d *Detector) {
		d.rng = r
	}
}

// WithClock overrides the time source stamped on records
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// New creates a detector over an initial fleet and a fixed set of zones
func New(th Thresholds, zones []models.RestrictedZone, fleet []models.Aircraft, opts ...Option) *Detector {
	d := &Detector{
		aircraft:   append([]models.Aircraft(nil), fleet...),
		zones:      append([]models.RestrictedZone(nil), zones...),
		known:      make(map[string]struct{}),
		thresholds: th,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return d
}

// Poll refreshes positions and runs detection as one atomic cycle.
// The telemetry fetch runs before the state lock is taken, so readers are not blocked on it.
func (d *Detector) Poll(ctx context.Context) Result {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()

	fleet, sourceName := d.fetch(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.applyLocked(fleet)
	res := d.detectLocked()
	res.Source = sourceName
	return res
}

// RefreshPositions replaces the fleet from telemetry, or simulates motion when telemetry
// is unavailable. It never fails.
func (d *Detector) RefreshPositions(ctx context.Context) {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()

	fleet, _ := d.fetch(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.applyLocked(fleet)
}

// DetectConflicts reports proximity conflicts and zone intrusions not seen before
func (d *Detector) DetectConflicts() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectLocked()
}

func (d *Detector) fetch(ctx context.Context) ([]models.Aircraft, string) {
	if d.source == nil {
		return nil, sourceSimulation
	}

	fleet, err := d.source.Fetch(ctx)
	if err != nil {
		slog.Warn("Telemetry fetch failed, simulating motion", "source", d.source.Name(), "error", err)
		return nil, sourceSimulation
	}
	if len(fleet) == 0 {
		slog.Debug("Telemetry returned no aircraft, simulating motion", "source", d.source.Name())
		return nil, sourceSimulation
	}
	return fleet, d.source.Name()
}

const sourceSimulation = "simulation"

func (d *Detector) applyLocked(fleet []models.Aircraft) {
	if fleet != nil {
		d.aircraft = fleet
		return
	}
	d.simulateLocked()
}

// simulateLocked nudges every aircraft by a bounded uniform offset
func (d *Detector) simulateLocked() {
	posJitter := d.thresholds.MaxPositionJitterDeg
	altJitter := d.thresholds.MaxAltitudeJitterFt
	now := d.now()

	for i := range d.aircraft {
		ac := &d.aircraft[i]
		ac.Lat = clamp(ac.Lat+d.uniform(posJitter), -90, 90)
		ac.Lon = wrapLongitude(ac.Lon + d.uniform(posJitter))
		ac.AltitudeFt = math.Max(0, ac.AltitudeFt+d.uniform(altJitter))
		ac.LastSeen = now
	}
}

// uniform returns a value in [-limit, limit]
func (d *Detector) uniform(limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return (d.rng.Float64()*2 - 1) * limit
}

func (d *Detector) detectLocked() Result {
	var res Result
	now := d.now()

	for i := 0; i < len(d.aircraft); i++ {
		for j := i + 1; j < len(d.aircraft); j++ {
			a, b := d.aircraft[i], d.aircraft[j]
			if a.ID == b.ID {
				continue
			}

			sep := Separation(a, b)
			if sep >= d.thresholds.ProximityKm {
				continue
			}

			key := PairKey(a.ID, b.ID)
			if !d.remember(key) {
				continue
			}

			severity := models.SeverityHigh
			if sep < d.thresholds.CriticalProximityKm {
				severity = models.SeverityCritical
			}

			res.Conflicts = append(res.Conflicts, models.ConflictRecord{
				Type:       models.ConflictTypeProximity,
				Flight1:    a.ID,
				Flight2:    b.ID,
				DistanceKm: sep,
				Severity:   severity,
				Key:        key,
				DetectedAt: now,
			})
			res.Alerts = append(res.Alerts, models.Alert{
				Kind:      models.AlertKindProximity,
				Title:     "Proximity conflict",
				Message:   fmt.Sprintf("%s and %s are %.2f km apart", a.Label(), b.Label(), sep),
				Severity:  severity,
				Key:       key,
				CreatedAt: now,
			})
		}
	}

	for _, ac := range d.aircraft {
		for _, zone := range d.zones {
			dist, inside := zone.Contains(ac.Position())
			if !inside {
				continue
			}

			key := ZoneKey(ac.ID, zone.Name)
			if !d.remember(key) {
				continue
			}

			severity := models.SeverityHigh
			if dist < zone.RadiusKm*d.thresholds.ZoneCriticalRatio {
				severity = models.SeverityCritical
			}

			res.Alerts = append(res.Alerts, models.Alert{
				Kind:      models.AlertKindZone,
				Title:     "Restricted zone intrusion",
				Message:   fmt.Sprintf("%s entered %s, %.2f km from its center", ac.Label(), zone.Name, dist),
				Severity:  severity,
				Key:       key,
				CreatedAt: now,
			})
		}
	}

	return res
}

// remember records key and reports whether it was new
func (d *Detector) remember(key string) bool {
	if _, ok := d.known[key]; ok {
		return false
	}
	d.known[key] = struct{}{}
	return true
}

// Aircraft returns a copy of the current fleet
func (d *Detector) Aircraft() []models.Aircraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Aircraft(nil), d.aircraft...)
}

// Zones returns the configured restricted zones
func (d *Detector) Zones() []models.RestrictedZone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.RestrictedZone(nil), d.zones...)
}

// KnownConflicts returns how many conflict identities have been reported
func (d *Detector) KnownConflicts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.known)
}

// KnownKeys returns the reported conflict identities in sorted order
func (d *Detector) KnownKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.known))
	for k := range d.known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Statistics counts the fleet by category
func (d *Detector) Statistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Statistics{
		TotalFlights:   len(d.aircraft),
		KnownConflicts: len(d.known),
		Zones:          len(d.zones),
	}
	for _, ac := range d.aircraft {
		switch ac.Category {
		case models.CategoryPassenger:
			stats.PassengerFlights++
		case models.CategoryCargo:
			stats.CargoFlights++
		default:
			stats.UnknownFlights++
		}
	}
	return stats
}

// Separation combines horizontal great-circle distance with altitude difference.
// Altitude difference in feet is scaled by 1/1000 before being combined with kilometers.
func Separation(a, b models.Aircraft) float64 {
	horizontal := geo.Distance(a.Position(), b.Position())
	vertical := math.Abs(a.AltitudeFt-b.AltitudeFt) / 1000
	return math.Sqrt(horizontal*horizontal + vertical*vertical)
}

// Dedup key namespaces, so a zone named after an aircraft id never collides with a pair
const (
	pairKeyPrefix = "pair:"
	zoneKeyPrefix = "zone:"
)

// PairKey is the dedup identity of a proximity conflict, independent of argument order
func PairKey(id1, id2 string) string {
	if id2 < id1 {
		id1, id2 = id2, id1
	}
	return pairKeyPrefix + id1 + "-" + id2
}

// ZoneKey is the dedup identity of an aircraft inside a zone
func ZoneKey(id, zoneName string) string {
	return zoneKeyPrefix + id + "-" + zoneName
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
