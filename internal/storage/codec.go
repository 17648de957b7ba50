package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/stroke"
)

// FormatVersion is the version written into every binary file header.
const FormatVersion uint16 = 1

// File magics.
var (
	magicChunk    = [4]byte{'S', 'K', 'C', 'K'}
	magicSheet    = [4]byte{'S', 'K', 'S', 'H'}
	magicDocument = [4]byte{'S', 'K', 'D', 'C'}
)

// Decoding limits guarding against corrupt length fields.
const (
	maxStrokesPerChunk = 1 << 22
	maxPointsPerStroke = 1 << 22
	maxStringLen       = 1 << 16
	maxSheets          = 1 << 16
)

var byteOrder = binary.LittleEndian

// SheetMeta is the persisted per-sheet metadata.
type SheetMeta struct {
	Name   string
	Camera chunk.Camera
}

// DocumentMeta is the persisted document metadata.
type DocumentMeta struct {
	Name          string
	ActiveSheet   uint32
	StrokeCounter uint64
	SheetIDs      []uint64
}

// encoder accumulates the first write error so call sites stay linear.
type encoder struct {
	w   *bufio.Writer
	err error
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriter(w)}
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}

	e.err = binary.Write(e.w, byteOrder, v)
}

func (e *encoder) header(magic [4]byte) {
	e.write(magic)
	e.write(FormatVersion)
}

func (e *encoder) string(s string) {
	e.write(uint32(len(s)))

	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

func (e *encoder) flush() error {
	if e.err != nil {
		return e.err
	}

	return e.w.Flush()
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) read(v any) {
	if d.err != nil {
		return
	}

	if err := binary.Read(d.r, byteOrder, v); err != nil {
		d.err = truncated(err)
	}
}

func (d *decoder) header(magic [4]byte) {
	var got [4]byte

	var version uint16

	d.read(&got)

	if d.err == nil && got != magic {
		d.err = fmt.Errorf("%w: %q", ErrBadMagic, got[:])

		return
	}

	d.read(&version)

	if d.err == nil && version != FormatVersion {
		d.err = fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

func (d *decoder) u32() uint32 {
	var v uint32

	d.read(&v)

	return v
}

func (d *decoder) u64() uint64 {
	var v uint64

	d.read(&v)

	return v
}

func (d *decoder) string() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}

	if n > maxStringLen {
		d.err = fmt.Errorf("%w: string length %d", ErrCorrupt, n)

		return ""
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = truncated(err)

		return ""
	}

	return string(buf)
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated", ErrCorrupt)
	}

	return err
}

// strokeHeader is the fixed-size prefix of a stroke record.
type strokeHeader struct {
	ID         uint64
	ChunkID    uint64
	PointCount uint32
}

// strokeTrailer follows the point list of a stroke record.
type strokeTrailer struct {
	Color     uint8
	Thickness uint8
	Eraser    uint8
}

func (e *encoder) stroke(s *stroke.Stroke) {
	e.write(strokeHeader{ID: s.ID, ChunkID: uint64(s.ChunkID), PointCount: uint32(len(s.Points))})
	e.write(s.Points)

	var eraser uint8
	if s.Eraser {
		eraser = 1
	}

	e.write(strokeTrailer{Color: s.Color, Thickness: s.Thickness, Eraser: eraser})
}

func (d *decoder) stroke() *stroke.Stroke {
	var h strokeHeader

	d.read(&h)

	if d.err != nil {
		return nil
	}

	if h.PointCount > maxPointsPerStroke {
		d.err = fmt.Errorf("%w: point count %d", ErrCorrupt, h.PointCount)

		return nil
	}

	points := make([]stroke.Point, h.PointCount)
	d.read(points)

	var tr strokeTrailer

	d.read(&tr)

	if d.err != nil {
		return nil
	}

	for _, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			d.err = fmt.Errorf("%w: non-finite point in stroke %d", ErrCorrupt, h.ID)

			return nil
		}
	}

	return &stroke.Stroke{
		ID:      h.ID,
		ChunkID: chunk.ID(h.ChunkID),
		Points:  points,
		Bounds:  stroke.BoundsOf(points),
		Style:   stroke.Style{Color: tr.Color, Thickness: tr.Thickness, Eraser: tr.Eraser != 0},
	}
}

func finite(v float32) bool {
	f := float64(v)

	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// EncodeChunk writes a chunk file.
func EncodeChunk(w io.Writer, c *Chunk) error {
	e := newEncoder(w)
	e.header(magicChunk)
	e.write(uint64(c.ID))
	e.write(uint32(len(c.Strokes)))

	for _, s := range c.Strokes {
		e.stroke(s)
	}

	return e.flush()
}

// DecodeChunk reads a chunk file.
func DecodeChunk(r io.Reader) (*Chunk, error) {
	d := &decoder{r: bufio.NewReader(r)}
	d.header(magicChunk)
	id := d.u64()
	count := d.u32()

	if d.err != nil {
		return nil, d.err
	}

	if count > maxStrokesPerChunk {
		return nil, fmt.Errorf("%w: stroke count %d", ErrCorrupt, count)
	}

	c := &Chunk{ID: chunk.ID(id), Strokes: make([]*stroke.Stroke, 0, count)}

	for range count {
		s := d.stroke()
		if d.err != nil {
			return nil, d.err
		}

		c.Strokes = append(c.Strokes, s)
	}

	return c, nil
}

// EncodeSheetMeta writes a sheet metadata file.
func EncodeSheetMeta(w io.Writer, m SheetMeta) error {
	e := newEncoder(w)
	e.header(magicSheet)
	e.string(m.Name)
	e.write(m.Camera)

	return e.flush()
}

// DecodeSheetMeta reads a sheet metadata file.
func DecodeSheetMeta(r io.Reader) (SheetMeta, error) {
	d := &decoder{r: bufio.NewReader(r)}
	d.header(magicSheet)

	var m SheetMeta

	m.Name = d.string()
	d.read(&m.Camera)

	if d.err != nil {
		return SheetMeta{}, d.err
	}

	return m, nil
}

// EncodeDocumentMeta writes the document metadata file.
func EncodeDocumentMeta(w io.Writer, m DocumentMeta) error {
	e := newEncoder(w)
	e.header(magicDocument)
	e.string(m.Name)
	e.write(uint32(len(m.SheetIDs)))
	e.write(m.ActiveSheet)
	e.write(m.StrokeCounter)
	e.write(m.SheetIDs)

	return e.flush()
}

// DecodeDocumentMeta reads the document metadata file.
func DecodeDocumentMeta(r io.Reader) (DocumentMeta, error) {
	d := &decoder{r: bufio.NewReader(r)}
	d.header(magicDocument)

	var m DocumentMeta

	m.Name = d.string()
	count := d.u32()
	m.ActiveSheet = d.u32()
	m.StrokeCounter = d.u64()

	if d.err != nil {
		return DocumentMeta{}, d.err
	}

	if count > maxSheets {
		return DocumentMeta{}, fmt.Errorf("%w: sheet count %d", ErrCorrupt, count)
	}

	m.SheetIDs = make([]uint64, count)
	d.read(m.SheetIDs)

	if d.err != nil {
		return DocumentMeta{}, d.err
	}

	return m, nil
}

func encodeBytes(fn func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
