package route

import (
	"errors"
	"fmt"

	"skyroute/internal/geo"
)

// DefaultMaxPasses bounds the number of 2-opt passes
const DefaultMaxPasses = 100

// improvementTolerance keeps 2-opt from cycling on moves that only win by rounding noise (km)
const improvementTolerance = 1e-9

// ErrNonFiniteCoordinate is returned when a point holds NaN or Inf
var ErrNonFiniteCoordinate = errors.New("non-finite coordinate")

// Options controls the route optimizer
type Options struct {
	MaxPasses int // 2-opt pass cap, DefaultMaxPasses when <= 0

	// PinDestination keeps the destination out of the greedy construction until every
	// other node is placed, so the path always ends there. When false the destination
	// is ordered like any other waypoint.
	PinDestination bool
}

// Result is an optimized open path and its total length
type Result struct {
	DistanceKm float64
	Points     []geo.Point
}

// Optimizer builds short open paths through mandatory waypoints.
// It holds no mutable state and is safe for concurrent use.
type Optimizer struct {
	maxPasses      int
	pinDestination bool
}

// New creates an optimizer
func New(opts Options) *Optimizer {
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	return &Optimizer{
		maxPasses:      maxPasses,
		pinDestination: opts.PinDestination,
	}
}

// Optimize orders [origin, waypoints..., destination] into a short open path starting at origin
func (o *Optimizer) Optimize(origin, destination geo.Point, waypoints []geo.Point) (Result, error) {
	nodes := make([]geo.Point, 0, len(waypoints)+2)
	nodes = append(nodes, origin)
	nodes = append(nodes, waypoints...)
	nodes = append(nodes, destination)

	return o.tour(nodes, o.pinDestination)
}

// FindShortestTour orders points into a short open path starting at points[0].
// Fewer than two points are returned unchanged with a zero distance.
func (o *Optimizer) FindShortestTour(points []geo.Point) (Result, error) {
	return o.tour(points, false)
}

func (o *Optimizer) tour(points []geo.Point, pinLast bool) (Result, error) {
	if len(points) <= 1 {
		return Result{DistanceKm: 0, Points: points}, nil
	}

	for i, p := range points {
		if !geo.Finite(p) {
			return Result{}, fmt.Errorf("point %d (%v, %v): %w", i, p.Lat, p.Lon, ErrNonFiniteCoordinate)
		}
	}

	dist := distanceMatrix(points)
	order := nearestNeighbor(dist, pinLast)
	twoOpt(dist, order, o.maxPasses)

	ordered := make([]geo.Point, len(order))
	for i, idx := range order {
		ordered[i] = points[idx]
	}

	return Result{
		DistanceKm: pathLength(dist, order),
		Points:     ordered,
	}, nil
}

// distanceMatrix precomputes every pairwise haversine distance
func distanceMatrix(points []geo.Point) [][]float64 {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.Distance(points[i], points[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// nearestNeighbor builds a greedy visiting order from node 0. Ties go to the lowest index.
// With pinLast the final node is held back and appended at the end.
func nearestNeighbor(dist [][]float64, pinLast bool) []int {
	n := len(dist)
	visited := make([]bool, n)
	order := make([]int, 0, n)

	visited[0] = true
	order = append(order, 0)

	candidates := n
	if pinLast && n > 1 {
		candidates = n - 1
	}

	for len(order) < candidates {
		last := order[len(order)-1]
		next := -1
		for j := 0; j < candidates; j++ {
			if visited[j] {
				continue
			}
			if next == -1 || dist[last][j] < dist[last][next] {
				next = j
			}
		}
		visited[next] = true
		order = append(order, next)
	}

	if candidates < n {
		order = append(order, n-1)
	}

	return order
}

// twoOpt refines an open path in place. Both endpoints stay fixed because only
// interior segments order[i+1..j] with j+1 <= n-1 are reversed.
func twoOpt(dist [][]float64, order []int, maxPasses int) {
	n := len(order)
	if n < 4 {
		return
	}

	for pass := 0; pass < maxPasses; pass++ {
		if !improveOnce(dist, order) {
			return
		}
	}
}

// improveOnce applies the first improving 2-opt move it finds and reports whether one was made
func improveOnce(dist [][]float64, order []int) bool {
	n := len(order)
	for i := 0; i < n-3; i++ {
		a, b := order[i], order[i+1]
		for j := i + 2; j < n-1; j++ {
			c, d := order[j], order[j+1]
			delta := dist[a][c] + dist[b][d] - dist[a][b] - dist[c][d]
			if delta < -improvementTolerance {
				reverse(order[i+1 : j+1])
				return true
			}
		}
	}
	return false
}

func reverse(s []int) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}

func pathLength(dist [][]float64, order []int) float64 {
	total := 0.0
	for i := 0; i+1 < len(order); i++ {
		total += dist[order[i]][order[i+1]]
	}
	return total
}

// PathLength sums consecutive haversine distances along points
func PathLength(points []geo.Point) float64 {
	total := 0.0
	for i := 0; i+1 < len(points); i++ {
		total += geo.Distance(points[i], points[i+1])
	}
	return total
}
