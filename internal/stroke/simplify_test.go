package stroke_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/stretchr/testify/require"
)

func line(n int, dx, dy float32) []stroke.Point {
	points := make([]stroke.Point, n)
	for i := range points {
		points[i] = stroke.Point{X: float32(i) * dx, Y: float32(i) * dy}
	}

	return points
}

func TestSimplify_StraightLineKeepsEndpoints(t *testing.T) {
	t.Parallel()

	got := stroke.Simplify(line(50, 3, 1))

	require.Equal(t, []stroke.Point{{X: 0, Y: 0}, {X: 147, Y: 49}}, got)
}

func TestSimplify_ShortStrokesUntouched(t *testing.T) {
	t.Parallel()

	for _, points := range [][]stroke.Point{nil, {{X: 1, Y: 1}}, {{X: 1, Y: 1}, {X: 2, Y: 2}}} {
		require.Equal(t, points, stroke.Simplify(points))
	}
}

func TestSimplify_KeepsCorner(t *testing.T) {
	t.Parallel()

	points := append(line(10, 1, 0), line(10, 0, 1)[1:]...)
	for i := 10; i < len(points); i++ {
		points[i].X = 9
	}

	got := stroke.Simplify(points)

	require.Equal(t, []stroke.Point{{X: 0, Y: 0}, {X: 9, Y: 0}, {X: 9, Y: 9}}, got)
}

func TestSimplify_ZigZagUnchanged(t *testing.T) {
	t.Parallel()

	points := []stroke.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}, {X: 3, Y: 1}, {X: 4, Y: 0}}

	require.Equal(t, points, stroke.Simplify(points))
}

func TestSimplify_ReversalIsKept(t *testing.T) {
	t.Parallel()

	points := []stroke.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 0}, {X: 0, Y: 0}}

	require.Equal(t, []stroke.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 0}}, stroke.Simplify(points))
}

func TestSimplify_WrapAroundAngles(t *testing.T) {
	t.Parallel()

	// Segments pointing left sit on either side of ±π.
	points := []stroke.Point{{X: 0, Y: 0}, {X: -100, Y: 0.001}, {X: -200, Y: 0}, {X: -300, Y: 0.001}}

	got := stroke.Simplify(points)

	require.Equal(t, []stroke.Point{points[0], points[3]}, got)
}

func TestSimplify_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	points := line(10, 1, 1)
	orig := append([]stroke.Point(nil), points...)

	_ = stroke.Simplify(points)

	require.Equal(t, orig, points)
}

func randomWalk(rng *rand.Rand, n int) []stroke.Point {
	points := make([]stroke.Point, n)

	x, y, heading := 0.0, 0.0, 0.0
	for i := range points {
		points[i] = stroke.Point{X: float32(x), Y: float32(y)}

		// Mix long straight stretches with sharp turns.
		if rng.IntN(4) == 0 {
			heading += rng.Float64()*2 - 1
		} else {
			heading += (rng.Float64() - 0.5) * 0.004
		}

		step := 1 + rng.Float64()*5
		x += step * math.Cos(heading)
		y += step * math.Sin(heading)
	}

	return points
}

func isSubsequence(sub, full []stroke.Point) bool {
	j := 0
	for _, p := range full {
		if j < len(sub) && sub[j] == p {
			j++
		}
	}

	return j == len(sub)
}

func TestSimplify_Properties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	for range 300 {
		points := randomWalk(rng, 3+rng.IntN(200))
		got := stroke.Simplify(points)

		require.GreaterOrEqual(t, len(got), 2)
		require.LessOrEqual(t, len(got), len(points))
		require.Equal(t, points[0], got[0])
		require.Equal(t, points[len(points)-1], got[len(got)-1])
		require.True(t, isSubsequence(got, points), "result must keep point order")
		require.Equal(t, got, stroke.Simplify(got), "simplify must be idempotent")
	}
}
