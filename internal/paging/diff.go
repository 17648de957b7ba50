package paging

import (
	"github.com/serroba/sketchbook/internal/chunk"
)

// Edge names one side of the visible rectangle.
type Edge int

// Edges in the order a diff visits them.
const (
	EdgeLeft Edge = iota
	EdgeRight
	EdgeBottom
	EdgeTop
)

func (e Edge) String() string {
	switch e {
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	case EdgeBottom:
		return "bottom"
	case EdgeTop:
		return "top"
	}

	return "unknown"
}

// EdgeChange lists the chunks exposed or hidden by one edge moving.
type EdgeChange struct {
	Edge  Edge
	Load  []chunk.ID
	Evict []chunk.ID
}

// Diff is the set of chunks to page in and out for one camera change.
// Full diffs come from a resync and carry no edges.
type Diff struct {
	Full   bool
	Bounds chunk.Bounds
	Edges  []EdgeChange
	Load   []chunk.ID
	Evict  []chunk.ID
}

// Empty reports whether the diff pages nothing.
func (d Diff) Empty() bool {
	return len(d.Load) == 0 && len(d.Evict) == 0
}

// EdgeDiff computes the chunks that enter and leave when the visible
// rectangle moves from old to cur. Each edge is handled on its own: an edge
// that moved outward loads its newly exposed cells, an edge that moved inward
// evicts the cells that fell outside. Left and right cover full column
// heights, bottom and top only the columns both rectangles share, so no cell
// is listed twice. Disjoint rectangles evict all of old and load all of cur.
func EdgeDiff(old, cur chunk.Bounds) Diff {
	d := Diff{Bounds: cur}

	if old.Empty() || cur.Empty() {
		d.Full = true
		d.Load = cur.IDs()
		d.Evict = old.IDs()

		return d
	}

	left := EdgeChange{Edge: EdgeLeft}
	if cur.Left < old.Left {
		left.Load = cells(cur.Left, min(old.Left-1, cur.Right), cur.Bottom, cur.Top)
	} else if cur.Left > old.Left {
		left.Evict = cells(old.Left, min(cur.Left-1, old.Right), old.Bottom, old.Top)
	}

	right := EdgeChange{Edge: EdgeRight}
	if cur.Right > old.Right {
		right.Load = cells(max(old.Right+1, cur.Left), cur.Right, cur.Bottom, cur.Top)
	} else if cur.Right < old.Right {
		right.Evict = cells(max(cur.Right+1, old.Left), old.Right, old.Bottom, old.Top)
	}

	// Columns present in both rectangles.
	x0, x1 := max(old.Left, cur.Left), min(old.Right, cur.Right)

	bottom := EdgeChange{Edge: EdgeBottom}
	if cur.Bottom < old.Bottom {
		bottom.Load = cells(x0, x1, cur.Bottom, min(old.Bottom-1, cur.Top))
	} else if cur.Bottom > old.Bottom {
		bottom.Evict = cells(x0, x1, old.Bottom, min(cur.Bottom-1, old.Top))
	}

	top := EdgeChange{Edge: EdgeTop}
	if cur.Top > old.Top {
		top.Load = cells(x0, x1, max(old.Top+1, cur.Bottom), cur.Top)
	} else if cur.Top < old.Top {
		top.Evict = cells(x0, x1, max(cur.Top+1, old.Bottom), old.Top)
	}

	for _, e := range []EdgeChange{left, right, bottom, top} {
		if len(e.Load) == 0 && len(e.Evict) == 0 {
			continue
		}

		d.Edges = append(d.Edges, e)
		d.Load = append(d.Load, e.Load...)
		d.Evict = append(d.Evict, e.Evict...)
	}

	return d
}

func cells(x0, x1, y0, y1 int) []chunk.ID {
	return chunk.Bounds{Left: x0, Right: x1, Bottom: y0, Top: y1}.IDs()
}
