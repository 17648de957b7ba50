// Package storage persists sheets, chunks and document metadata in the
// document's working directory.
package storage

import (
	"errors"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/stroke"
)

// Common errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrCorrupt            = errors.New("corrupt file")
	ErrBadMagic           = errors.New("unrecognized file header")
	ErrUnsupportedVersion = errors.New("unsupported format version")
)

// Chunk is one grid cell of a sheet and the strokes it owns.
type Chunk struct {
	ID      chunk.ID
	Strokes []*stroke.Stroke
}

// Empty reports whether the chunk owns no strokes.
func (c *Chunk) Empty() bool {
	return len(c.Strokes) == 0
}

// Store defines the interface for persisting a document's working state.
// Implementations can use the filesystem or memory.
type Store interface {
	// LoadChunk reads a chunk of a sheet.
	// A chunk that was never saved is returned empty without error.
	// Returns an error wrapping ErrCorrupt if the stored bytes cannot be decoded.
	LoadChunk(sheetID uint64, id chunk.ID) (*Chunk, error)

	// SaveChunk persists a chunk. Saving an empty chunk removes it.
	SaveChunk(sheetID uint64, c *Chunk) error

	// ListChunks returns the ids of all stored chunks of a sheet.
	ListChunks(sheetID uint64) ([]chunk.ID, error)

	// CreateSheet prepares storage for a new sheet.
	CreateSheet(sheetID uint64) error

	// DeleteSheet removes a sheet with all its chunks and metadata.
	DeleteSheet(sheetID uint64) error

	// ListSheets returns the ids of all stored sheets in ascending order.
	ListSheets() ([]uint64, error)

	// LoadSheetMeta reads the metadata of a sheet.
	// Returns ErrNotFound if it was never saved.
	LoadSheetMeta(sheetID uint64) (SheetMeta, error)

	// SaveSheetMeta persists the metadata of a sheet.
	SaveSheetMeta(sheetID uint64, m SheetMeta) error

	// LoadThumbnail reads the PNG thumbnail of a sheet.
	// Returns ErrNotFound if there is none.
	LoadThumbnail(sheetID uint64) ([]byte, error)

	// SaveThumbnail persists the PNG thumbnail of a sheet.
	SaveThumbnail(sheetID uint64, png []byte) error

	// LoadDocumentMeta reads the document metadata.
	// Returns ErrNotFound if it was never saved.
	LoadDocumentMeta() (DocumentMeta, error)

	// SaveDocumentMeta persists the document metadata.
	SaveDocumentMeta(m DocumentMeta) error
}
