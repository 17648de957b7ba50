package paging_test

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/paging"
	"github.com/stretchr/testify/require"
)

func ids(t *testing.T, cells ...[2]int) []chunk.ID {
	t.Helper()

	out := make([]chunk.ID, 0, len(cells))

	for _, c := range cells {
		id, err := chunk.Pack(c[0], c[1])
		require.NoError(t, err)

		out = append(out, id)
	}

	return out
}

func set(list []chunk.ID) map[chunk.ID]struct{} {
	m := make(map[chunk.ID]struct{}, len(list))
	for _, id := range list {
		m[id] = struct{}{}
	}

	return m
}

// minus lists the cells of a that are not in b.
func minus(a, b chunk.Bounds) map[chunk.ID]struct{} {
	out := make(map[chunk.ID]struct{})

	for _, id := range a.IDs() {
		if !b.ContainsID(id) {
			out[id] = struct{}{}
		}
	}

	return out
}

func TestEdgeDiff_RightEdgeMovesOut(t *testing.T) {
	t.Parallel()

	old := chunk.Bounds{Left: 8, Right: 10, Bottom: 4, Top: 5}
	cur := chunk.Bounds{Left: 8, Right: 12, Bottom: 4, Top: 5}

	d := paging.EdgeDiff(old, cur)

	require.False(t, d.Full)
	require.Empty(t, d.Evict)
	require.Equal(t, ids(t, [2]int{11, 4}, [2]int{11, 5}, [2]int{12, 4}, [2]int{12, 5}), d.Load)
	require.Len(t, d.Edges, 1)
	require.Equal(t, paging.EdgeRight, d.Edges[0].Edge)
}

func TestEdgeDiff_LeftEdgeMovesIn(t *testing.T) {
	t.Parallel()

	old := chunk.Bounds{Left: 8, Right: 10, Bottom: 4, Top: 4}
	cur := chunk.Bounds{Left: 9, Right: 10, Bottom: 4, Top: 4}

	d := paging.EdgeDiff(old, cur)

	require.Empty(t, d.Load)
	require.Equal(t, ids(t, [2]int{8, 4}), d.Evict)
	require.Equal(t, paging.EdgeLeft, d.Edges[0].Edge)
}

func TestEdgeDiff_Identical(t *testing.T) {
	t.Parallel()

	b := chunk.Bounds{Left: 1, Right: 3, Bottom: 1, Top: 3}

	d := paging.EdgeDiff(b, b)
	require.True(t, d.Empty())
	require.Empty(t, d.Edges)
}

func TestEdgeDiff_Disjoint(t *testing.T) {
	t.Parallel()

	old := chunk.Bounds{Left: 0, Right: 1, Bottom: 0, Top: 1}
	cur := chunk.Bounds{Left: 10, Right: 11, Bottom: 20, Top: 21}

	d := paging.EdgeDiff(old, cur)

	require.Equal(t, set(old.IDs()), set(d.Evict))
	require.Equal(t, set(cur.IDs()), set(d.Load))
	require.Len(t, d.Load, 4)
	require.Len(t, d.Evict, 4)
}

func TestEdgeDiff_EdgeOrder(t *testing.T) {
	t.Parallel()

	old := chunk.Bounds{Left: 5, Right: 6, Bottom: 5, Top: 6}
	cur := chunk.Bounds{Left: 4, Right: 7, Bottom: 4, Top: 7}

	d := paging.EdgeDiff(old, cur)

	got := make([]paging.Edge, 0, len(d.Edges))
	for _, e := range d.Edges {
		got = append(got, e.Edge)
	}

	require.Equal(t, []paging.Edge{paging.EdgeLeft, paging.EdgeRight, paging.EdgeBottom, paging.EdgeTop}, got)
	require.Len(t, d.Load, 16-4)
}

func TestEdgeDiff_FromEmptyIsFull(t *testing.T) {
	t.Parallel()

	cur := chunk.Bounds{Left: 2, Right: 3, Bottom: 2, Top: 2}

	d := paging.EdgeDiff(chunk.Bounds{Left: 1, Right: 0}, cur)

	require.True(t, d.Full)
	require.Equal(t, cur.IDs(), d.Load)
	require.Empty(t, d.Evict)
}

func TestEdgeDiff_MatchesSetDifference(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	rect := func() chunk.Bounds {
		l, b := rng.IntN(12), rng.IntN(12)

		return chunk.Bounds{Left: l, Right: l + rng.IntN(6), Bottom: b, Top: b + rng.IntN(6)}
	}

	for i := range 2000 {
		old, cur := rect(), rect()
		d := paging.EdgeDiff(old, cur)

		load, evict := set(d.Load), set(d.Evict)

		if len(load) != len(d.Load) || len(evict) != len(d.Evict) {
			t.Fatalf("case %d %+v -> %+v: duplicate cells", i, old, cur)
		}

		require.Equal(t, minus(cur, old), load, "case %d loads %+v -> %+v", i, old, cur)
		require.Equal(t, minus(old, cur), evict, "case %d evicts %+v -> %+v", i, old, cur)

		for id := range load {
			if _, ok := evict[id]; ok {
				t.Fatalf("case %d: %s both loaded and evicted", i, id)
			}
		}
	}
}

func TestEdge_String(t *testing.T) {
	t.Parallel()

	names := []string{}
	for _, e := range []paging.Edge{paging.EdgeLeft, paging.EdgeRight, paging.EdgeBottom, paging.EdgeTop, paging.Edge(9)} {
		names = append(names, e.String())
	}

	require.True(t, slices.Equal([]string{"left", "right", "bottom", "top", "unknown"}, names))
}
