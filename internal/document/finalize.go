package document

import (
	"fmt"

	"github.com/serroba/sketchbook/internal/stroke"
)

// FinalizeStroke turns a completed point list into a persisted stroke.
// The points are simplified first; the owning chunk is then fixed once from
// the center of the simplified bounding box. The owning chunk is read into
// the working set if needed, the stroke gets the next id and the chunk is
// written through. If that write fails the stroke stays in memory and its
// chunk is retried on the next eviction or flush.
//
// Strokes with fewer than stroke.MinPoints points are rejected with
// stroke.ErrStrokeTooShort; callers drop them silently.
func (d *Document) FinalizeStroke(points []stroke.Point, style stroke.Style) (*stroke.Stroke, error) {
	if len(points) < stroke.MinPoints {
		return nil, stroke.ErrStrokeTooShort
	}

	if err := style.Validate(); err != nil {
		return nil, err
	}

	simplified := stroke.Simplify(points)

	owner, err := stroke.Owner(simplified)
	if err != nil {
		return nil, fmt.Errorf("stroke owner: %w", err)
	}

	lc, err := d.ensureLoaded(owner)
	if err != nil {
		return nil, err
	}

	sheetID := d.ActiveSheet().ID

	d.mu.Lock()
	s := &stroke.Stroke{
		ID:      d.counter,
		ChunkID: owner,
		Points:  simplified,
		Bounds:  stroke.BoundsOf(simplified),
		Style:   style,
	}
	d.counter++
	d.dirty = true
	lc.Strokes = append(lc.Strokes, s)
	// Ids only grow, so appending keeps the list sorted.
	d.strokes = append(d.strokes, s)
	d.mu.Unlock()

	if err := d.saveChunk(sheetID, lc); err != nil {
		d.logger.Warn("write-through failed, chunk kept for retry", "sheet", sheetID, "chunk", owner, "stroke", s.ID, "error", err)
	}

	if err := d.saveDocumentMeta(); err != nil {
		d.logger.Warn("persist stroke counter", "counter", s.ID+1, "error", err)
	}

	return s, nil
}
