package storage

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/serroba/sketchbook/internal/chunk"
)

// sheetData holds all persisted data for a single sheet.
type sheetData struct {
	meta      []byte
	thumbnail []byte
	chunks    map[chunk.ID][]byte
}

// MemoryStore is an in-memory implementation of the Store interface.
// Records are kept encoded, so callers never share state with the store.
// Useful for testing and development.
type MemoryStore struct {
	mu     sync.RWMutex
	meta   []byte
	sheets map[uint64]*sheetData
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sheets: make(map[uint64]*sheetData),
	}
}

// sheet returns the sheet's data, creating it on first use. Callers hold mu.
func (m *MemoryStore) sheet(sheetID uint64) *sheetData {
	sd, ok := m.sheets[sheetID]
	if !ok {
		sd = &sheetData{chunks: make(map[chunk.ID][]byte)}
		m.sheets[sheetID] = sd
	}

	return sd
}

// LoadChunk decodes a stored chunk, or returns an empty one.
func (m *MemoryStore) LoadChunk(sheetID uint64, id chunk.ID) (*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sd, ok := m.sheets[sheetID]
	if !ok {
		return &Chunk{ID: id}, nil
	}

	data, ok := sd.chunks[id]
	if !ok {
		return &Chunk{ID: id}, nil
	}

	c, err := DecodeChunk(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrCorrupt, id, err)
	}

	return c, nil
}

// SaveChunk encodes and stores a chunk. Empty chunks are removed.
func (m *MemoryStore) SaveChunk(sheetID uint64, c *Chunk) error {
	var data []byte

	if !c.Empty() {
		var err error

		data, err = encodeBytes(func(w io.Writer) error { return EncodeChunk(w, c) })
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sd := m.sheet(sheetID)

	if data == nil {
		delete(sd.chunks, c.ID)

		return nil
	}

	sd.chunks[c.ID] = data

	return nil
}

// ListChunks returns the stored chunk ids of a sheet in ascending order.
func (m *MemoryStore) ListChunks(sheetID uint64) ([]chunk.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sd, ok := m.sheets[sheetID]
	if !ok {
		return nil, nil
	}

	return slices.Sorted(maps.Keys(sd.chunks)), nil
}

// CreateSheet registers an empty sheet.
func (m *MemoryStore) CreateSheet(sheetID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sheet(sheetID)

	return nil
}

// DeleteSheet drops a sheet and everything stored for it.
func (m *MemoryStore) DeleteSheet(sheetID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sheets, sheetID)

	return nil
}

// ListSheets returns the known sheet ids in ascending order.
func (m *MemoryStore) ListSheets() ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.sheets)), nil
}

// LoadSheetMeta decodes a sheet's metadata.
func (m *MemoryStore) LoadSheetMeta(sheetID uint64) (SheetMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sd, ok := m.sheets[sheetID]
	if !ok || sd.meta == nil {
		return SheetMeta{}, fmt.Errorf("sheet %d meta: %w", sheetID, ErrNotFound)
	}

	return DecodeSheetMeta(bytes.NewReader(sd.meta))
}

// SaveSheetMeta encodes and stores a sheet's metadata.
func (m *MemoryStore) SaveSheetMeta(sheetID uint64, meta SheetMeta) error {
	data, err := encodeBytes(func(w io.Writer) error { return EncodeSheetMeta(w, meta) })
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sheet(sheetID).meta = data

	return nil
}

// LoadThumbnail returns a copy of a sheet's thumbnail.
func (m *MemoryStore) LoadThumbnail(sheetID uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sd, ok := m.sheets[sheetID]
	if !ok || sd.thumbnail == nil {
		return nil, fmt.Errorf("sheet %d thumbnail: %w", sheetID, ErrNotFound)
	}

	return bytes.Clone(sd.thumbnail), nil
}

// SaveThumbnail stores a copy of a sheet's thumbnail.
func (m *MemoryStore) SaveThumbnail(sheetID uint64, png []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sheet(sheetID).thumbnail = bytes.Clone(png)

	return nil
}

// LoadDocumentMeta decodes the document metadata.
func (m *MemoryStore) LoadDocumentMeta() (DocumentMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.meta == nil {
		return DocumentMeta{}, fmt.Errorf("document meta: %w", ErrNotFound)
	}

	return DecodeDocumentMeta(bytes.NewReader(m.meta))
}

// SaveDocumentMeta encodes and stores the document metadata.
func (m *MemoryStore) SaveDocumentMeta(meta DocumentMeta) error {
	data, err := encodeBytes(func(w io.Writer) error { return EncodeDocumentMeta(w, meta) })
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.meta = data

	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
