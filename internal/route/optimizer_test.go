package route

import (
	"math"
	"math/rand"
	"testing"

	"skyroute/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mexicoCity = geo.NewPoint(19.43, -99.13)
	queretaro  = geo.NewPoint(20.59, -100.39)
	toluca     = geo.NewPoint(18.97, -99.28)
	puebla     = geo.NewPoint(19.04, -98.21)
	pachuca    = geo.NewPoint(20.10, -98.75)
)

func randomPoints(r *rand.Rand, n int) []geo.Point {
	points := make([]geo.Point, n)
	for i := range points {
		points[i] = geo.NewPoint(18+r.Float64()*4, -101+r.Float64()*4)
	}
	return points
}

func TestFindShortestTour_Degenerate(t *testing.T) {
	opt := New(Options{})

	res, err := opt.FindShortestTour(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.DistanceKm)
	assert.Empty(t, res.Points)

	single := []geo.Point{mexicoCity}
	res, err = opt.FindShortestTour(single)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.DistanceKm)
	assert.Equal(t, single, res.Points)
}

func TestFindShortestTour_TwoPoints(t *testing.T) {
	opt := New(Options{})

	res, err := opt.FindShortestTour([]geo.Point{mexicoCity, queretaro})
	require.NoError(t, err)
	assert.Equal(t, geo.Distance(mexicoCity, queretaro), res.DistanceKm)
	assert.Equal(t, []geo.Point{mexicoCity, queretaro}, res.Points)
}

func TestFindShortestTour_Triangle(t *testing.T) {
	opt := New(Options{})

	res, err := opt.FindShortestTour([]geo.Point{mexicoCity, queretaro, toluca})
	require.NoError(t, err)
	require.Len(t, res.Points, 3)
	assert.Equal(t, mexicoCity, res.Points[0])
	// Toluca is closer to Mexico City than Querétaro
	assert.Equal(t, toluca, res.Points[1])
	assert.Greater(t, res.DistanceKm, 0.0)
}

func TestFindShortestTour_TieBreaksByLowestIndex(t *testing.T) {
	origin := geo.NewPoint(0, 0)
	east := geo.NewPoint(0, 1)
	west := geo.NewPoint(0, -1)

	res, err := New(Options{}).FindShortestTour([]geo.Point{origin, east, west})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{origin, east, west}, res.Points)
}

func TestFindShortestTour_DistanceMatchesPath(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	opt := New(Options{})

	for n := 2; n <= 30; n++ {
		res, err := opt.FindShortestTour(randomPoints(r, n))
		require.NoError(t, err)
		require.Len(t, res.Points, n)
		assert.Equal(t, PathLength(res.Points), res.DistanceKm, "n=%d", n)
	}
}

func TestTwoOpt_NeverWorseThanSeed(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		points := randomPoints(r, 4+r.Intn(20))
		dist := distanceMatrix(points)

		order := nearestNeighbor(dist, false)
		seed := pathLength(dist, order)
		twoOpt(dist, order, DefaultMaxPasses)

		assert.LessOrEqual(t, pathLength(dist, order), seed+1e-9)
		assert.Equal(t, 0, order[0])
	}
}

func TestTwoOpt_UncrossesPath(t *testing.T) {
	// NN from the origin visits b then jumps to c, crossing the b-d leg
	points := []geo.Point{
		geo.NewPoint(0, 0),
		geo.NewPoint(0, 1),
		geo.NewPoint(1, 1),
		geo.NewPoint(1, 0),
		geo.NewPoint(0, 2.1),
	}
	dist := distanceMatrix(points)
	order := []int{0, 2, 1, 3, 4}
	before := pathLength(dist, order)

	twoOpt(dist, order, DefaultMaxPasses)

	assert.Less(t, pathLength(dist, order), before)
	assert.Equal(t, 0, order[0])
	assert.Equal(t, 4, order[len(order)-1])
}

func TestTwoOpt_PassCap(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	points := randomPoints(r, 25)
	dist := distanceMatrix(points)

	order := []int{}
	for i := range points {
		order = append(order, i)
	}
	before := pathLength(dist, order)

	single := append([]int(nil), order...)
	require.True(t, improveOnce(dist, single))

	full := append([]int(nil), order...)
	twoOpt(dist, full, DefaultMaxPasses)

	// One pass applies exactly one improving move
	twoOpt(dist, order, 1)
	assert.Equal(t, single, order)
	assert.Less(t, pathLength(dist, order), before)
	assert.LessOrEqual(t, pathLength(dist, full), pathLength(dist, order))
	assert.NotEqual(t, full, order)
}

func TestOptimize_BuildsSequence(t *testing.T) {
	opt := New(Options{})

	res, err := opt.Optimize(mexicoCity, queretaro, []geo.Point{pachuca, puebla, pachuca})
	require.NoError(t, err)
	require.Len(t, res.Points, 5)
	assert.Equal(t, mexicoCity, res.Points[0])
	assert.ElementsMatch(t, []geo.Point{mexicoCity, queretaro, pachuca, puebla, pachuca}, res.Points)
	assert.Equal(t, PathLength(res.Points), res.DistanceKm)
}

func TestOptimize_NoWaypoints(t *testing.T) {
	res, err := New(Options{}).Optimize(mexicoCity, queretaro, nil)
	require.NoError(t, err)
	assert.Equal(t, geo.Distance(mexicoCity, queretaro), res.DistanceKm)
}

func TestOptimize_UnpinnedDestinationMayMove(t *testing.T) {
	// The destination sits next to the origin, so the greedy walk reaches it first
	origin := geo.NewPoint(0, 0)
	destination := geo.NewPoint(0, 0.1)
	far := geo.NewPoint(0, 5)

	res, err := New(Options{}).Optimize(origin, destination, []geo.Point{far})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{origin, destination, far}, res.Points)
}

func TestOptimize_PinnedDestinationIsLast(t *testing.T) {
	origin := geo.NewPoint(0, 0)
	destination := geo.NewPoint(0, 0.1)
	far := geo.NewPoint(0, 5)

	res, err := New(Options{PinDestination: true}).Optimize(origin, destination, []geo.Point{far})
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{origin, far, destination}, res.Points)
	assert.Equal(t, PathLength(res.Points), res.DistanceKm)
}

func TestOptimize_PinnedRandom(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	opt := New(Options{PinDestination: true})

	for trial := 0; trial < 20; trial++ {
		points := randomPoints(r, 2+r.Intn(15))
		origin, destination := points[0], points[1]

		res, err := opt.Optimize(origin, destination, points[2:])
		require.NoError(t, err)
		assert.Equal(t, origin, res.Points[0])
		assert.Equal(t, destination, res.Points[len(res.Points)-1])
	}
}

func TestOptimize_NonFinite(t *testing.T) {
	_, err := New(Options{}).Optimize(mexicoCity, geo.NewPoint(math.NaN(), 0), nil)
	assert.ErrorIs(t, err, ErrNonFiniteCoordinate)
}

func TestNew_DefaultPasses(t *testing.T) {
	assert.Equal(t, DefaultMaxPasses, New(Options{}).maxPasses)
	assert.Equal(t, 5, New(Options{MaxPasses: 5}).maxPasses)
}

func TestIsCritical(t *testing.T) {
	th := DefaultCriticalThresholds()

	tests := []struct {
		name        string
		distance    float64
		constraints int
		want        bool
	}{
		{name: "short and simple", distance: 150, constraints: 0, want: false},
		{name: "long route", distance: 501, constraints: 0, want: true},
		{name: "exactly at distance threshold", distance: 500, constraints: 2, want: false},
		{name: "many constraints", distance: 10, constraints: 3, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCritical(Result{DistanceKm: tt.distance}, tt.constraints, th))
		})
	}
}
