package conflict

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"skyroute/internal/geo"
	"skyroute/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSource is a hand-rolled telemetry source returning canned fleets
type mockSource struct {
	fleets [][]models.Aircraft
	err    error
	calls  int
}

func (m *mockSource) Fetch(ctx context.Context) ([]models.Aircraft, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.fleets) == 0 {
		return nil, nil
	}
	fleet := m.fleets[0]
	if len(m.fleets) > 1 {
		m.fleets = m.fleets[1:]
	}
	return fleet, nil
}

func (m *mockSource) Name() string { return "mock" }

// kmEast returns the longitude offset that moves roughly km kilometers east along the equator
func kmEast(km float64) float64 {
	return km / (math.Pi * geo.EarthRadiusKm / 180)
}

func fixedClock() time.Time {
	return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
}

func newTestDetector(zones []models.RestrictedZone, fleet []models.Aircraft, opts ...Option) *Detector {
	opts = append([]Option{WithRand(rand.New(rand.NewSource(1))), WithClock(fixedClock)}, opts...)
	return New(DefaultThresholds(), zones, fleet, opts...)
}

func TestDetectConflicts_CriticalPairDeduplicated(t *testing.T) {
	fleet := []models.Aircraft{
		{ID: "A1", Callsign: "AMX100", Lat: 0, Lon: 0, AltitudeFt: 30000},
		{ID: "B2", Callsign: "VOI200", Lat: 0, Lon: kmEast(1), AltitudeFt: 30000},
	}
	d := newTestDetector(nil, fleet)

	first := d.DetectConflicts()
	require.Len(t, first.Conflicts, 1)
	assert.Equal(t, models.SeverityCritical, first.Conflicts[0].Severity)
	assert.Equal(t, models.ConflictTypeProximity, first.Conflicts[0].Type)
	assert.Equal(t, "A1", first.Conflicts[0].Flight1)
	assert.Equal(t, "B2", first.Conflicts[0].Flight2)
	assert.InDelta(t, 1.0, first.Conflicts[0].DistanceKm, 1e-6)
	require.Len(t, first.Alerts, 1)
	assert.Equal(t, models.AlertKindProximity, first.Alerts[0].Kind)
	assert.Contains(t, first.Alerts[0].Message, "AMX100")

	second := d.DetectConflicts()
	assert.Empty(t, second.Conflicts)
	assert.Empty(t, second.Alerts)
	assert.Equal(t, 1, d.KnownConflicts())
}

func TestDetectConflicts_SeverityTiers(t *testing.T) {
	tests := []struct {
		name      string
		km        float64
		altDiff   float64
		wantCount int
		want      models.Severity
	}{
		{name: "one km level", km: 1, wantCount: 1, want: models.SeverityCritical},
		{name: "three km level", km: 3, wantCount: 1, want: models.SeverityHigh},
		{name: "six km level", km: 6, wantCount: 0},
		{name: "vertical separation pushes out", km: 3, altDiff: 5000, wantCount: 0},
		{name: "vertical separation raises tier", km: 1.5, altDiff: 2000, wantCount: 1, want: models.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fleet := []models.Aircraft{
				{ID: "A", Lat: 0, Lon: 0, AltitudeFt: 20000},
				{ID: "B", Lat: 0, Lon: kmEast(tt.km), AltitudeFt: 20000 + tt.altDiff},
			}
			res := newTestDetector(nil, fleet).DetectConflicts()
			require.Len(t, res.Conflicts, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.want, res.Conflicts[0].Severity)
			}
		})
	}
}

func TestDetectConflicts_ZoneCenterIsCritical(t *testing.T) {
	zone := models.RestrictedZone{Name: "Palacio", Center: geo.NewPoint(19.4326, -99.1332), RadiusKm: 3}
	fleet := []models.Aircraft{{ID: "X1", Callsign: "XAABC", Lat: 19.4326, Lon: -99.1332, AltitudeFt: 5000}}

	d := newTestDetector([]models.RestrictedZone{zone}, fleet)
	res := d.DetectConflicts()

	assert.Empty(t, res.Conflicts)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, models.AlertKindZone, res.Alerts[0].Kind)
	assert.Equal(t, models.SeverityCritical, res.Alerts[0].Severity)
	assert.Equal(t, "zone:X1-Palacio", res.Alerts[0].Key)

	assert.Empty(t, d.DetectConflicts().Alerts)
}

func TestDetectConflicts_ZoneOuterRingIsHigh(t *testing.T) {
	zone := models.RestrictedZone{Name: "Ring", Center: geo.NewPoint(0, 0), RadiusKm: 10}
	fleet := []models.Aircraft{
		{ID: "IN", Lat: 0, Lon: kmEast(7)},
		{ID: "OUT", Lat: 0, Lon: kmEast(13)},
	}

	res := newTestDetector([]models.RestrictedZone{zone}, fleet).DetectConflicts()

	// IN and OUT are 6 km apart, not a proximity conflict
	assert.Empty(t, res.Conflicts)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, models.SeverityHigh, res.Alerts[0].Severity)
	assert.Equal(t, ZoneKey("IN", "Ring"), res.Alerts[0].Key)
}

func TestDetectConflicts_Empty(t *testing.T) {
	d := newTestDetector(nil, nil)
	res := d.DetectConflicts()
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Alerts)
}

func TestDetectConflicts_RecurringConditionNotReAlerted(t *testing.T) {
	near := [][]models.Aircraft{
		{{ID: "A", Lat: 0, Lon: 0}, {ID: "B", Lat: 0, Lon: kmEast(1)}},
		{{ID: "A", Lat: 0, Lon: 0}, {ID: "B", Lat: 0, Lon: kmEast(50)}},
		{{ID: "B", Lat: 0, Lon: kmEast(1)}, {ID: "A", Lat: 0, Lon: 0}},
	}
	src := &mockSource{fleets: near}
	d := newTestDetector(nil, nil, WithSource(src))

	assert.Len(t, d.Poll(context.Background()).Conflicts, 1)
	assert.Empty(t, d.Poll(context.Background()).Conflicts)
	// Same pair, reversed order in the feed
	assert.Empty(t, d.Poll(context.Background()).Conflicts)
	assert.Equal(t, []string{PairKey("A", "B")}, d.KnownKeys())
}

func TestKnownConflicts_NonDecreasing(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	fleet := make([]models.Aircraft, 12)
	for i := range fleet {
		fleet[i] = models.Aircraft{
			ID:         string(rune('A' + i)),
			Lat:        19.4 + r.Float64()*0.1,
			Lon:        -99.1 + r.Float64()*0.1,
			AltitudeFt: 10000 + r.Float64()*2000,
		}
	}
	zones := []models.RestrictedZone{{Name: "Z", Center: geo.NewPoint(19.45, -99.05), RadiusKm: 4}}

	th := DefaultThresholds()
	th.MaxPositionJitterDeg = 0.05
	d := New(th, zones, fleet, WithRand(rand.New(rand.NewSource(5))), WithClock(fixedClock))

	prev := d.KnownConflicts()
	for i := 0; i < 30; i++ {
		d.Poll(context.Background())
		cur := d.KnownConflicts()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestRefreshPositions_SimulationBounded(t *testing.T) {
	fleet := []models.Aircraft{
		{ID: "A", Lat: 19.4, Lon: -99.1, AltitudeFt: 12000},
		{ID: "B", Lat: 20.0, Lon: -100.0, AltitudeFt: 30000},
	}
	d := newTestDetector(nil, fleet)

	d.RefreshPositions(context.Background())
	moved := d.Aircraft()

	th := DefaultThresholds()
	for i := range fleet {
		assert.LessOrEqual(t, math.Abs(moved[i].Lat-fleet[i].Lat), th.MaxPositionJitterDeg)
		assert.LessOrEqual(t, math.Abs(moved[i].Lon-fleet[i].Lon), th.MaxPositionJitterDeg)
		assert.LessOrEqual(t, math.Abs(moved[i].AltitudeFt-fleet[i].AltitudeFt), th.MaxAltitudeJitterFt)
		assert.Equal(t, fixedClock(), moved[i].LastSeen)
	}
}

func TestRefreshPositions_SeededIsReproducible(t *testing.T) {
	fleet := []models.Aircraft{{ID: "A", Lat: 19.4, Lon: -99.1, AltitudeFt: 12000}}

	d1 := newTestDetector(nil, fleet)
	d2 := newTestDetector(nil, fleet)
	for i := 0; i < 5; i++ {
		d1.RefreshPositions(context.Background())
		d2.RefreshPositions(context.Background())
	}

	assert.Equal(t, d1.Aircraft(), d2.Aircraft())
}

func TestRefreshPositions_TelemetryFailureFallsBack(t *testing.T) {
	fleet := []models.Aircraft{{ID: "A", Lat: 19.4, Lon: -99.1, AltitudeFt: 12000}}
	src := &mockSource{err: errors.New("connection refused")}
	d := newTestDetector(nil, fleet, WithSource(src))

	res := d.Poll(context.Background())

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, sourceSimulation, res.Source)
	require.Len(t, d.Aircraft(), 1)
	assert.NotEqual(t, fleet[0].Lat, d.Aircraft()[0].Lat)
}

func TestRefreshPositions_TelemetryReplacesFleet(t *testing.T) {
	live := []models.Aircraft{
		{ID: "L1", Lat: 10, Lon: 10, Category: models.CategoryCargo},
		{ID: "L2", Lat: 11, Lon: 11, Category: models.CategoryPassenger},
	}
	src := &mockSource{fleets: [][]models.Aircraft{live}}
	d := newTestDetector(nil, []models.Aircraft{{ID: "SIM"}}, WithSource(src))

	res := d.Poll(context.Background())

	assert.Equal(t, "mock", res.Source)
	assert.Equal(t, live, d.Aircraft())
}

func TestStatistics(t *testing.T) {
	fleet := []models.Aircraft{
		{ID: "1", Category: models.CategoryPassenger},
		{ID: "2", Category: models.CategoryPassenger},
		{ID: "3", Category: models.CategoryCargo},
		{ID: "4"},
	}
	zones := []models.RestrictedZone{{Name: "Z", RadiusKm: 1, Center: geo.NewPoint(50, 50)}}

	stats := newTestDetector(zones, fleet).Statistics()

	assert.Equal(t, Statistics{
		TotalFlights:     4,
		PassengerFlights: 2,
		CargoFlights:     1,
		UnknownFlights:   1,
		Zones:            1,
	}, stats)
}

func TestPoll_ConcurrentCallers(t *testing.T) {
	fleet := []models.Aircraft{
		{ID: "A", Lat: 0, Lon: 0},
		{ID: "B", Lat: 0, Lon: kmEast(0.5)},
	}
	d := newTestDetector(nil, fleet)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(d.Poll(context.Background()).Conflicts)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
}

// gatedSource blocks its first fetch until released and stamps each fleet with the call number
type gatedSource struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedSource) Fetch(ctx context.Context) ([]models.Aircraft, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if n == 1 {
		close(g.entered)
		<-g.release
	}
	return []models.Aircraft{{ID: "A", AltitudeFt: float64(n)}}, nil
}

func (g *gatedSource) Name() string { return "gated" }

func TestPoll_SlowFetchDoesNotOverwriteNewerFleet(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	d := newTestDetector(nil, nil, WithSource(src))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.Poll(context.Background())
	}()
	<-src.entered
	go func() {
		defer wg.Done()
		d.Poll(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	fleet := d.Aircraft()
	require.Len(t, fleet, 1)
	assert.Equal(t, float64(2), fleet[0].AltitudeFt)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, "pair:A-B", PairKey("A", "B"))
	assert.Equal(t, "pair:A-B", PairKey("B", "A"))
	assert.Equal(t, "zone:A-Zone", ZoneKey("A", "Zone"))
	assert.NotEqual(t, PairKey("A", "B"), ZoneKey("A", "B"))
}

func TestDetectConflicts_ZoneNamedAfterAircraft(t *testing.T) {
	zone := models.RestrictedZone{Name: "AC2", Center: geo.NewPoint(0, 0), RadiusKm: 10}
	fleet := []models.Aircraft{
		{ID: "AC1", Lat: 0, Lon: 0, AltitudeFt: 10000},
		{ID: "AC2", Lat: 0, Lon: kmEast(1), AltitudeFt: 10000},
	}

	d := newTestDetector([]models.RestrictedZone{zone}, fleet)
	res := d.DetectConflicts()

	require.Len(t, res.Conflicts, 1)
	zoneAlerts := 0
	for _, a := range res.Alerts {
		if a.Kind == models.AlertKindZone {
			zoneAlerts++
		}
	}
	assert.Equal(t, 2, zoneAlerts)
	assert.Len(t, res.Alerts, 3)
	assert.Equal(t, []string{"pair:AC1-AC2", "zone:AC1-AC2", "zone:AC2-AC2"}, d.KnownKeys())
}

func TestSeparation(t *testing.T) {
	a := models.Aircraft{Lat: 0, Lon: 0, AltitudeFt: 0}
	b := models.Aircraft{Lat: 0, Lon: 0, AltitudeFt: 4000}
	assert.InDelta(t, 4.0, Separation(a, b), 1e-12)
}
