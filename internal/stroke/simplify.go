package stroke

import "math"

// AngleThreshold is the largest direction change, in radians, between
// segments that still counts as a straight run.
const AngleThreshold = 0.01

// Simplify removes vertices lying inside runs of nearly collinear segments.
// A run is anchored on the direction of its first segment and extends while
// every following segment stays within AngleThreshold of that direction; the
// interior vertices of each run are dropped while its endpoints are kept.
// Passes repeat until nothing more can be removed, so simplifying the result
// again is a no-op. Inputs with two or fewer points are returned unchanged.
// The input slice is never modified.
func Simplify(points []Point) []Point {
	out := append([]Point(nil), points...)

	for len(out) > 2 {
		next, removed := simplifyPass(out)
		if removed == 0 {
			break
		}

		out = next
	}

	return out
}

type span struct {
	start, end int
}

func simplifyPass(points []Point) ([]Point, int) {
	n := len(points)

	angles := make([]float64, n-1)
	for i := range angles {
		dx := float64(points[i+1].X) - float64(points[i].X)
		dy := float64(points[i+1].Y) - float64(points[i].Y)
		angles[i] = math.Atan2(dy, dx)
	}

	var spans []span

	runStart := -1

	var base float64

	for i := 1; i < n-1; i++ {
		if runStart < 0 {
			if angleDelta(angles[i-1], angles[i]) < AngleThreshold {
				runStart = i - 1
				base = angles[i-1]
			}

			continue
		}

		if angleDelta(base, angles[i]) >= AngleThreshold {
			spans = append(spans, span{start: runStart + 1, end: i})
			runStart = -1
		}
	}

	if runStart >= 0 {
		spans = append(spans, span{start: runStart + 1, end: n - 1})
	}

	return removeSpans(points, spans)
}

// removeSpans drops the half-open index ranges in one copy pass.
// Spans must be sorted and disjoint.
func removeSpans(points []Point, spans []span) ([]Point, int) {
	removed := 0
	for _, s := range spans {
		removed += s.end - s.start
	}

	if removed == 0 {
		return points, 0
	}

	out := make([]Point, 0, len(points)-removed)
	from := 0

	for _, s := range spans {
		out = append(out, points[from:s.start]...)
		from = s.end
	}

	out = append(out, points[from:]...)

	return out, removed
}

// angleDelta returns the absolute difference of two directions wrapped
// into [0, π].
func angleDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}

	return d
}
