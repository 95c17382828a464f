package synthetic

import (
	"math"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	Step = 10 * time.Minute

	defaultSteepness = 8.0
	defaultShift     = 0.15
)

// Point is one cumulative observation.
type Point struct {
	At    time.Time
	Views int64
}

// Series builds a logistic cumulative curve on a 10-minute grid from upload
// to end inclusive. Values are non-decreasing integers capped at final, and
// the last value equals final whenever there are at least two points.
// A single point (or none) yields zeros.
func Series(upload, end time.Time, final int64, seed uint64) []Point {
	var points []Point
	for at := upload; !at.After(end); at = at.Add(Step) {
		points = append(points, Point{At: at})
	}

	n := len(points)
	if n <= 1 || final <= 0 {
		return points
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	k := defaultSteepness * (0.9 + 0.2*rng.Float64())
	s := defaultShift + 0.05*(rng.Float64()-0.5)

	curve := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range curve {
		t := float64(i) / float64(n-1)
		curve[i] = float64(final) / (1 + math.Exp(-k*(t-s)))
		lo = math.Min(lo, curve[i])
	}
	for i := range curve {
		curve[i] -= lo
		hi = math.Max(hi, curve[i])
	}
	if hi <= 0 {
		hi = 1
	}

	var running int64
	for i := range points {
		v := int64(math.RoundToEven(curve[i] / hi * float64(final)))
		if v > running {
			running = v
		}
		points[i].Views = min(running, final)
	}

	return points
}

// SeedFor derives the curve seed from the digits of a media id.
func SeedFor(mediaID string) uint64 {
	digits := nonDigit.ReplaceAllString(mediaID, "")
	if digits == "" {
		return 0
	}
	seed, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0
	}
	return seed
}
