// Package thumbnail rasterizes a sheet's strokes in software and produces
// the PNG thumbnails stored with each sheet and next to each archive.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/gogpu/gg"
	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/stroke"
	xdraw "golang.org/x/image/draw"
)

// Shrink factors applied to the rendered viewport.
const (
	DefaultSheetShrink   = 10
	DefaultLibraryShrink = 5
)

// ErrEmptyViewport is returned when there is nothing to render into.
var ErrEmptyViewport = errors.New("viewport has no area")

// Config holds configuration for a Renderer.
type Config struct {
	// SheetShrink and LibraryShrink divide the viewport size.
	SheetShrink   int
	LibraryShrink int
}

// Renderer draws strokes the way the canvas shows them.
type Renderer struct {
	sheetShrink   int
	libraryShrink int
}

// NewRenderer creates a renderer. Zero shrink factors use the defaults.
func NewRenderer(cfg Config) *Renderer {
	r := &Renderer{sheetShrink: cfg.SheetShrink, libraryShrink: cfg.LibraryShrink}

	if r.sheetShrink <= 0 {
		r.sheetShrink = DefaultSheetShrink
	}

	if r.libraryShrink <= 0 {
		r.libraryShrink = DefaultLibraryShrink
	}

	return r
}

// Render draws strokes in id order as seen by cam in a vp-sized frame.
// Canvas y grows upward; the camera sits at the center of the frame. The
// frame is limited to chunk.MaxViewportSide on each side.
func (r *Renderer) Render(strokes []*stroke.Stroke, cam chunk.Camera, vp chunk.Viewport) (image.Image, error) {
	vp = vp.Clamped()

	w, h := int(vp.Width), int(vp.Height)
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyViewport
	}

	cam = cam.Clamped()
	zoom := float64(cam.Zoom)

	dc := gg.NewContext(w, h)
	defer dc.Close()

	bg := stroke.Background
	dc.ClearWithColor(gg.RGB(float64(bg.R)/255, float64(bg.G)/255, float64(bg.B)/255))

	dc.Translate(float64(w)/2, float64(h)/2)
	dc.Scale(zoom, -zoom)
	dc.Translate(-float64(cam.X), -float64(cam.Y))

	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	for _, s := range strokes {
		if len(s.Points) < 2 {
			continue
		}

		c := s.RGB()
		dc.SetRGB(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
		// Widths are in screen pixels, so undo the zoom.
		dc.SetLineWidth(float64(s.Width()) / zoom)

		dc.MoveTo(float64(s.Points[0].X), float64(s.Points[0].Y))

		for _, p := range s.Points[1:] {
			dc.LineTo(float64(p.X), float64(p.Y))
		}

		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("stroke %d: %w", s.ID, err)
		}
	}

	return dc.Image(), nil
}

// Sheet renders the thumbnail kept in a sheet directory.
func (r *Renderer) Sheet(strokes []*stroke.Stroke, cam chunk.Camera, vp chunk.Viewport) ([]byte, error) {
	return r.thumbnail(strokes, cam, vp, r.sheetShrink)
}

// Library renders the larger thumbnail kept next to an archive.
func (r *Renderer) Library(strokes []*stroke.Stroke, cam chunk.Camera, vp chunk.Viewport) ([]byte, error) {
	return r.thumbnail(strokes, cam, vp, r.libraryShrink)
}

// Both renders once and returns the sheet and library thumbnails.
func (r *Renderer) Both(strokes []*stroke.Stroke, cam chunk.Camera, vp chunk.Viewport) (sheet, library []byte, err error) {
	img, err := r.Render(strokes, cam, vp)
	if err != nil {
		return nil, nil, err
	}

	if sheet, err = EncodePNG(Shrink(img, r.sheetShrink)); err != nil {
		return nil, nil, err
	}

	if library, err = EncodePNG(Shrink(img, r.libraryShrink)); err != nil {
		return nil, nil, err
	}

	return sheet, library, nil
}

func (r *Renderer) thumbnail(strokes []*stroke.Stroke, cam chunk.Camera, vp chunk.Viewport, shrink int) ([]byte, error) {
	img, err := r.Render(strokes, cam, vp)
	if err != nil {
		return nil, err
	}

	return EncodePNG(Shrink(img, shrink))
}

// Shrink scales img down by factor, keeping at least one pixel per side.
func Shrink(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/factor), max(1, b.Dy()/factor)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer

	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return buf.Bytes(), nil
}
