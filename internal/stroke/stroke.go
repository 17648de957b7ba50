// Package stroke holds the stroke entity, its style palettes and the
// simplifier applied when a stroke is finalized.
package stroke

import (
	"errors"
	"math"

	"github.com/serroba/sketchbook/internal/chunk"
)

// Common errors.
var (
	ErrStrokeTooShort = errors.New("stroke has too few points")
	ErrStrokeStarted  = errors.New("stroke style is fixed once points were added")
	ErrInvalidStyle   = errors.New("stroke style index out of range")
)

// MinPoints is the smallest number of points a persisted stroke has.
const MinPoints = 3

// Point is a position in canvas units.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Box is an axis-aligned bounding box.
type Box struct {
	MinX float32 `json:"minX"`
	MinY float32 `json:"minY"`
	MaxX float32 `json:"maxX"`
	MaxY float32 `json:"maxY"`
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return (float64(b.MinX) + float64(b.MaxX)) / 2, (float64(b.MinY) + float64(b.MaxY)) / 2
}

// BoundsOf returns the bounding box of points. An empty slice yields a zero box.
func BoundsOf(points []Point) Box {
	if len(points) == 0 {
		return Box{}
	}

	b := Box{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}

	for _, p := range points[1:] {
		b.MinX = min(b.MinX, p.X)
		b.MinY = min(b.MinY, p.Y)
		b.MaxX = max(b.MaxX, p.X)
		b.MaxY = max(b.MaxY, p.Y)
	}

	return b
}

// Stroke is a finalized polyline owned by exactly one chunk.
type Stroke struct {
	ID      uint64   `json:"id"`
	ChunkID chunk.ID `json:"chunkId"`
	Points  []Point  `json:"points"`
	Bounds  Box      `json:"bounds"`
	Style
}

// Owner returns the chunk containing the center of the points' bounding box.
func Owner(points []Point) (chunk.ID, error) {
	cx, cy := BoundsOf(points).Center()

	return chunk.Of(math.Floor(cx), math.Floor(cy))
}

// Simplify drops redundant collinear points and recomputes the bounding box
// and owning chunk from the remaining geometry.
func (s *Stroke) Simplify() error {
	points := Simplify(s.Points)

	owner, err := Owner(points)
	if err != nil {
		return err
	}

	s.Points = points
	s.Bounds = BoundsOf(points)
	s.ChunkID = owner

	return nil
}

// Clone returns a deep copy of the stroke.
func (s *Stroke) Clone() *Stroke {
	c := *s
	c.Points = append([]Point(nil), s.Points...)

	return &c
}
