package stroke

import "fmt"

// RGB is an 8-bit color.
type RGB struct {
	R, G, B uint8
}

// Hex returns the color as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette is the fixed list of stroke colors, indexed by Style.Color.
var Palette = []RGB{
	{0x00, 0x00, 0x00}, // black
	{0x7f, 0x7f, 0x7f}, // grey
	{0xff, 0x00, 0x00}, // red
	{0xff, 0x7f, 0x00}, // orange
	{0xff, 0xff, 0x00}, // yellow
	{0x7f, 0xff, 0x00}, // chartreuse
	{0x00, 0xff, 0x00}, // green
	{0x00, 0xff, 0x7f}, // spring green
	{0x00, 0xff, 0xff}, // cyan
	{0x00, 0x7f, 0xff}, // sky blue
	{0x00, 0x00, 0xff}, // blue
	{0x7f, 0x00, 0xff}, // purple
	{0xff, 0x00, 0xff}, // magenta
	{0xff, 0x00, 0x7f}, // pink
	{0xff, 0xff, 0xff}, // white
}

// Thicknesses is the fixed list of line widths, indexed by Style.Thickness.
var Thicknesses = []float32{1.0, 2.5, 4.0, 5.5, 7.0}

// Style defaults and modifiers.
const (
	DefaultColor     uint8 = 0
	DefaultThickness uint8 = 2
	// EraserScale multiplies the line width of eraser strokes.
	EraserScale = 8
)

// Background is the canvas color erasers paint with.
var Background = RGB{0xff, 0xff, 0xff}

// Style holds the palette indexes of a stroke.
type Style struct {
	Color     uint8 `json:"color"`
	Thickness uint8 `json:"thickness"`
	Eraser    bool  `json:"eraser"`
}

// DefaultStyle returns the style of a new stroke.
func DefaultStyle() Style {
	return Style{Color: DefaultColor, Thickness: DefaultThickness}
}

// Validate checks that both indexes address their palettes.
func (s Style) Validate() error {
	if int(s.Color) >= len(Palette) {
		return fmt.Errorf("%w: color %d", ErrInvalidStyle, s.Color)
	}

	if int(s.Thickness) >= len(Thicknesses) {
		return fmt.Errorf("%w: thickness %d", ErrInvalidStyle, s.Thickness)
	}

	return nil
}

// RGB returns the color used to draw the stroke.
func (s Style) RGB() RGB {
	if s.Eraser {
		return Background
	}

	if int(s.Color) >= len(Palette) {
		return Palette[DefaultColor]
	}

	return Palette[s.Color]
}

// Width returns the line width used to draw the stroke.
func (s Style) Width() float32 {
	w := Thicknesses[DefaultThickness]
	if int(s.Thickness) < len(Thicknesses) {
		w = Thicknesses[s.Thickness]
	}

	if s.Eraser {
		w *= EraserScale
	}

	return w
}
