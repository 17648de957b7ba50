package chunk

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMargin is the visible-bounds margin factor. The half extent kept
// loaded along each axis is (viewport / zoom) / margin, so 0.2 keeps five
// viewports of canvas resident in every direction.
const DefaultMargin = 0.2

// MinMargin is the smallest margin factor VisibleBounds uses.
const MinMargin = 0.1

// Camera is a sheet's view pose in canvas units.
type Camera struct {
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Zoom float32 `json:"zoom"`
}

// DefaultCamera is the pose of a freshly created sheet.
var DefaultCamera = Camera{Zoom: 1}

// Zoom limits. With MaxViewportSide and MinMargin they bound the visible
// rectangle to a few tens of thousands of chunks.
const (
	MinZoom = 0.1
	MaxZoom = 10
)

// ClampZoom limits z to [MinZoom, MaxZoom]. Non-finite or non-positive
// values become 1.
func ClampZoom(z float32) float32 {
	f := float64(z)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 1
	}

	return float32(max(MinZoom, min(MaxZoom, f)))
}

// Clamped returns the camera with its zoom clamped and non-finite
// coordinates reset to the origin.
func (c Camera) Clamped() Camera {
	if !finite(c.X) {
		c.X = 0
	}

	if !finite(c.Y) {
		c.Y = 0
	}

	c.Zoom = ClampZoom(c.Zoom)

	return c
}

func finite(v float32) bool {
	f := float64(v)

	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Viewport is the renderer's drawable size in pixels.
type Viewport struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// MaxViewportSide is the largest accepted viewport width or height.
const MaxViewportSide = 4096

// ErrInvalidViewport is returned for a viewport that is not finite, has no
// area or exceeds MaxViewportSide.
var ErrInvalidViewport = errors.New("invalid viewport")

// Validate checks that both sides are finite and in (0, MaxViewportSide].
func (v Viewport) Validate() error {
	for _, side := range []float32{v.Width, v.Height} {
		if !finite(side) || side <= 0 || side > MaxViewportSide {
			return fmt.Errorf("%w: %vx%v", ErrInvalidViewport, v.Width, v.Height)
		}
	}

	return nil
}

// Clamped limits both sides to [0, MaxViewportSide]. Non-finite sides become 0.
func (v Viewport) Clamped() Viewport {
	clamp := func(side float32) float32 {
		if !finite(side) || side < 0 {
			return 0
		}

		return min(side, MaxViewportSide)
	}

	return Viewport{Width: clamp(v.Width), Height: clamp(v.Height)}
}

// Bounds is an inclusive rectangle of axis indexes.
type Bounds struct {
	Left   int `json:"left"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Top    int `json:"top"`
}

// Empty reports whether the rectangle contains no chunks.
func (b Bounds) Empty() bool {
	return b.Left > b.Right || b.Bottom > b.Top
}

// Width returns the number of columns.
func (b Bounds) Width() int {
	if b.Empty() {
		return 0
	}

	return b.Right - b.Left + 1
}

// Height returns the number of rows.
func (b Bounds) Height() int {
	if b.Empty() {
		return 0
	}

	return b.Top - b.Bottom + 1
}

// Contains reports whether the axis pair lies inside the rectangle.
func (b Bounds) Contains(cx, cy int) bool {
	return cx >= b.Left && cx <= b.Right && cy >= b.Bottom && cy <= b.Top
}

// ContainsID reports whether the chunk lies inside the rectangle.
func (b Bounds) ContainsID(id ID) bool {
	cx, cy, err := Unpack(id)
	if err != nil {
		return false
	}

	return b.Contains(cx, cy)
}

// IDs enumerates the chunks of the rectangle column by column.
// Cells outside the grid are skipped.
func (b Bounds) IDs() []ID {
	if b.Empty() {
		return nil
	}

	ids := make([]ID, 0, b.Width()*b.Height())

	for cx := b.Left; cx <= b.Right; cx++ {
		for cy := b.Bottom; cy <= b.Top; cy++ {
			id, err := Pack(cx, cy)
			if err != nil {
				continue
			}

			ids = append(ids, id)
		}
	}

	return ids
}

// VisibleBounds returns the chunk rectangle to keep loaded for a camera pose.
// The camera and viewport are clamped first. A non-positive or non-finite
// margin falls back to DefaultMargin; smaller margins are raised to MinMargin.
func VisibleBounds(cam Camera, vp Viewport, margin float64) Bounds {
	cam = cam.Clamped()
	vp = vp.Clamped()

	if math.IsNaN(margin) || math.IsInf(margin, 0) || margin <= 0 {
		margin = DefaultMargin
	}

	margin = max(margin, MinMargin)

	zoom := float64(cam.Zoom)
	halfW := float64(vp.Width) / zoom / margin
	halfH := float64(vp.Height) / zoom / margin
	x, y := float64(cam.X), float64(cam.Y)

	return Bounds{
		Left:   clampAxis(Axis(x - halfW)),
		Right:  clampAxis(Axis(x + halfW)),
		Bottom: clampAxis(Axis(y - halfH)),
		Top:    clampAxis(Axis(y + halfH)),
	}
}

func clampAxis(v int) int {
	return max(0, min(MaxAxis, v))
}
