package stroke

// Builder collects the points of a stroke while it is being drawn.
// Style changes are only accepted before the first point.
type Builder struct {
	style  Style
	points []Point
}

// NewBuilder creates a builder with the given style.
func NewBuilder(style Style) *Builder {
	return &Builder{style: style}
}

// SetColor changes the color index.
func (b *Builder) SetColor(color uint8) error {
	if len(b.points) > 0 {
		return ErrStrokeStarted
	}

	next := b.style
	next.Color = color

	if err := next.Validate(); err != nil {
		return err
	}

	b.style = next

	return nil
}

// SetThickness changes the thickness index.
func (b *Builder) SetThickness(thickness uint8) error {
	if len(b.points) > 0 {
		return ErrStrokeStarted
	}

	next := b.style
	next.Thickness = thickness

	if err := next.Validate(); err != nil {
		return err
	}

	b.style = next

	return nil
}

// SetEraser toggles eraser mode.
func (b *Builder) SetEraser(eraser bool) error {
	if len(b.points) > 0 {
		return ErrStrokeStarted
	}

	b.style.Eraser = eraser

	return nil
}

// Add appends a point.
func (b *Builder) Add(x, y float32) {
	b.points = append(b.points, Point{X: x, Y: y})
}

// Len returns the number of collected points.
func (b *Builder) Len() int {
	return len(b.points)
}

// Style returns the current style.
func (b *Builder) Style() Style {
	return b.style
}

// Points returns a copy of the collected points.
func (b *Builder) Points() []Point {
	return append([]Point(nil), b.points...)
}

// Reset discards the collected points and keeps the style.
func (b *Builder) Reset() {
	b.points = b.points[:0]
}
