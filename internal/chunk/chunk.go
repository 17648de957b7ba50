// Package chunk maps canvas coordinates onto the fixed grid of chunks that
// sheets are paged in.
package chunk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Grid geometry.
const (
	// Size is the side length of a chunk in canvas units.
	Size = 4000
	// Offset shifts signed chunk coordinates into the unsigned axis range.
	Offset = 32767
	// MaxAxis is the largest valid axis index.
	MaxAxis = 65535
)

// ErrOutOfRange is returned when an axis index falls outside [0, MaxAxis].
var ErrOutOfRange = errors.New("chunk coordinate out of range")

// ID identifies one chunk of a sheet. The high 32 bits hold the x axis index
// and the low 32 bits the y axis index.
type ID uint64

// String returns the decimal form used for chunk file names.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Axis converts one canvas coordinate to its axis index.
// Values are floored, so -1 and -4000 land in the same chunk. Results beyond
// the grid saturate one step outside it, which Pack rejects.
func Axis(v float64) int {
	f := math.Floor(v/Size) + Offset

	switch {
	case math.IsNaN(f), f < -1:
		return -1
	case f > MaxAxis+1:
		return MaxAxis + 1
	}

	return int(f)
}

// Pack combines two axis indexes into a chunk ID.
func Pack(cx, cy int) (ID, error) {
	if cx < 0 || cx > MaxAxis || cy < 0 || cy > MaxAxis {
		return 0, fmt.Errorf("%w: (%d, %d)", ErrOutOfRange, cx, cy)
	}

	return ID(uint64(cx)<<32 | uint64(cy)), nil
}

// MustPack is like Pack but panics on invalid input. Intended for tests and
// constant tables.
func MustPack(cx, cy int) ID {
	id, err := Pack(cx, cy)
	if err != nil {
		panic(err)
	}

	return id
}

// Unpack splits a chunk ID into its axis indexes.
func Unpack(id ID) (int, int, error) {
	cx := uint64(id) >> 32
	cy := uint64(id) & 0xFFFFFFFF

	if cx > MaxAxis || cy > MaxAxis {
		return 0, 0, fmt.Errorf("%w: id %d", ErrOutOfRange, uint64(id))
	}

	return int(cx), int(cy), nil
}

// Of returns the chunk containing the canvas point (x, y).
func Of(x, y float64) (ID, error) {
	return Pack(Axis(x), Axis(y))
}

// ParseID parses a decimal chunk file name.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chunk id %q: %w", s, err)
	}

	id := ID(v)
	if _, _, err := Unpack(id); err != nil {
		return 0, err
	}

	return id, nil
}

// Origin returns the canvas coordinates of the chunk's lower-left corner.
func Origin(id ID) (float64, float64, error) {
	cx, cy, err := Unpack(id)
	if err != nil {
		return 0, 0, err
	}

	return float64(cx-Offset) * Size, float64(cy-Offset) * Size, nil
}
