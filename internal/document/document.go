// Package document models an open sketchbook: its ordered sheets, the
// working set of loaded chunks of the active sheet, and the stroke counter.
//
// Mutating methods must be called from one goroutine at a time (the paging
// queue); read accessors are safe for concurrent use.
package document

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/storage"
	"github.com/serroba/sketchbook/internal/stroke"
)

// Common errors.
var (
	ErrMetadataUnreadable = errors.New("document metadata unreadable")
	ErrNothingToRecover   = errors.New("no sheets to recover")
	ErrFlushFailed        = errors.New("could not save all chunks")
	ErrSheetIndex         = errors.New("sheet index out of range")
	ErrLastSheet          = errors.New("cannot delete the only sheet")
)

// DefaultReadConcurrency bounds parallel chunk reads during a load batch.
const DefaultReadConcurrency = 8

// Sheet describes one canvas of the document.
type Sheet struct {
	ID        uint64       `json:"id"`
	Name      string       `json:"name"`
	Camera    chunk.Camera `json:"camera"`
	Thumbnail []byte       `json:"-"`
}

// State is a point-in-time summary of the document.
type State struct {
	Name          string  `json:"name"`
	Sheets        []Sheet `json:"sheets"`
	ActiveSheet   int     `json:"activeSheet"`
	StrokeCounter uint64  `json:"strokeCounter"`
	Dirty         bool    `json:"dirty"`
	LoadedChunks  int     `json:"loadedChunks"`
	LoadedStrokes int     `json:"loadedStrokes"`
}

// Config holds configuration for creating or loading a document.
type Config struct {
	Store           storage.Store
	Logger          *slog.Logger
	Now             func() time.Time
	ReadConcurrency int
}

// loadedChunk is a working-set entry. unsaved marks chunks whose last save failed.
type loadedChunk struct {
	*storage.Chunk
	unsaved bool
}

// Document is an open sketchbook.
type Document struct {
	store     storage.Store
	logger    *slog.Logger
	now       func() time.Time
	readLimit int

	mu      sync.RWMutex
	name    string
	sheets  []Sheet
	active  int
	counter uint64
	dirty   bool
	loaded  map[chunk.ID]*loadedChunk
	strokes []*stroke.Stroke
}

func newDocument(cfg Config) (*Document, error) {
	if cfg.Store == nil {
		return nil, errors.New("document: store is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	readLimit := cfg.ReadConcurrency
	if readLimit <= 0 {
		readLimit = DefaultReadConcurrency
	}

	return &Document{
		store:     cfg.Store,
		logger:    logging.OrNop(cfg.Logger),
		now:       now,
		readLimit: readLimit,
		loaded:    make(map[chunk.ID]*loadedChunk),
	}, nil
}

// New creates an empty document with a single sheet and persists its metadata.
func New(cfg Config) (*Document, error) {
	d, err := newDocument(cfg)
	if err != nil {
		return nil, err
	}

	sheet := Sheet{ID: d.nextSheetID(), Name: d.suggestSheetName(), Camera: chunk.DefaultCamera}

	if err := d.store.CreateSheet(sheet.ID); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	if err := d.saveSheetMeta(sheet); err != nil {
		return nil, fmt.Errorf("save sheet metadata: %w", err)
	}

	d.sheets = []Sheet{sheet}

	if err := d.saveDocumentMeta(); err != nil {
		return nil, fmt.Errorf("save document metadata: %w", err)
	}

	return d, nil
}

// Load reads a document from its store. Missing sheet metadata falls back to
// a default name and camera; missing thumbnails are ignored.
func Load(cfg Config) (*Document, error) {
	d, err := newDocument(cfg)
	if err != nil {
		return nil, err
	}

	meta, err := d.store.LoadDocumentMeta()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataUnreadable, err)
	}

	if len(meta.SheetIDs) == 0 {
		return nil, fmt.Errorf("%w: no sheets listed", ErrMetadataUnreadable)
	}

	d.name = meta.Name
	d.counter = meta.StrokeCounter

	for _, id := range meta.SheetIDs {
		d.sheets = append(d.sheets, d.readSheet(id))
	}

	d.active = int(meta.ActiveSheet)
	if d.active >= len(d.sheets) {
		d.logger.Warn("active sheet out of range, using first", "active", meta.ActiveSheet, "sheets", len(d.sheets))
		d.active = 0
	}

	return d, nil
}

// Recover rebuilds a document left behind by an unclean exit. When the
// document metadata is unreadable the sheet list is rebuilt from the sheet
// directories in id order. In both cases the stroke counter is raised above
// every stroke id found on disk. The recovered document is dirty.
func Recover(cfg Config) (*Document, error) {
	d, err := Load(cfg)

	switch {
	case err == nil:
	case errors.Is(err, ErrMetadataUnreadable):
		d, err = rebuild(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if next := d.scanStrokeCounter(); next > d.counter {
		d.logger.Info("raised stroke counter from chunk scan", "from", d.counter, "to", next)
		d.counter = next
	}

	d.dirty = true

	if err := d.saveDocumentMeta(); err != nil {
		return nil, fmt.Errorf("save recovered metadata: %w", err)
	}

	return d, nil
}

func rebuild(cfg Config) (*Document, error) {
	d, err := newDocument(cfg)
	if err != nil {
		return nil, err
	}

	ids, err := d.store.ListSheets()
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}

	if len(ids) == 0 {
		return nil, ErrNothingToRecover
	}

	d.logger.Warn("document metadata unreadable, rebuilding from sheet directories", "sheets", len(ids))

	for _, id := range ids {
		d.sheets = append(d.sheets, d.readSheet(id))
	}

	return d, nil
}

// readSheet loads a sheet's metadata and thumbnail, substituting defaults.
// d.sheets must hold the sheets read so far.
func (d *Document) readSheet(id uint64) Sheet {
	sheet := Sheet{ID: id, Camera: chunk.DefaultCamera}

	meta, err := d.store.LoadSheetMeta(id)

	switch {
	case err == nil:
		sheet.Name = meta.Name
		sheet.Camera = meta.Camera
	case errors.Is(err, storage.ErrNotFound):
		d.logger.Debug("sheet metadata missing", "sheet", id)
	default:
		d.logger.Warn("sheet metadata unreadable", "sheet", id, "error", err)
	}

	if ValidateName(sheet.Name) != nil || d.nameTaken(sheet.Name, -1) {
		sheet.Name = d.suggestSheetName()
	}

	sheet.Camera = sheet.Camera.Clamped()

	thumb, err := d.store.LoadThumbnail(id)
	if err == nil {
		sheet.Thumbnail = thumb
	} else if !errors.Is(err, storage.ErrNotFound) {
		d.logger.Warn("sheet thumbnail unreadable", "sheet", id, "error", err)
	}

	return sheet
}

func (d *Document) scanStrokeCounter() uint64 {
	var next uint64

	for _, sheet := range d.sheets {
		ids, err := d.store.ListChunks(sheet.ID)
		if err != nil {
			d.logger.Warn("list chunks", "sheet", sheet.ID, "error", err)

			continue
		}

		for _, id := range ids {
			c, err := d.store.LoadChunk(sheet.ID, id)
			if err != nil {
				d.logger.Warn("scan chunk", "sheet", sheet.ID, "chunk", id, "error", err)

				continue
			}

			for _, s := range c.Strokes {
				next = max(next, s.ID+1)
			}
		}
	}

	return next
}

// nextSheetID derives an id from the current time, bumped past existing ids
// so ids stay unique and increasing.
func (d *Document) nextSheetID() uint64 {
	id := uint64(max(0, d.now().UnixMilli()))

	for _, s := range d.sheets {
		if s.ID >= id {
			id = s.ID + 1
		}
	}

	return id
}

func (d *Document) saveSheetMeta(s Sheet) error {
	return d.store.SaveSheetMeta(s.ID, storage.SheetMeta{Name: s.Name, Camera: s.Camera})
}

func (d *Document) saveDocumentMeta() error {
	d.mu.RLock()
	meta := storage.DocumentMeta{
		Name:          d.name,
		ActiveSheet:   uint32(d.active),
		StrokeCounter: d.counter,
		SheetIDs:      make([]uint64, len(d.sheets)),
	}

	for i, s := range d.sheets {
		meta.SheetIDs[i] = s.ID
	}
	d.mu.RUnlock()

	return d.store.SaveDocumentMeta(meta)
}

// Name returns the document name. An empty name means the document was never saved.
func (d *Document) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.name
}

// SetName renames the document and persists the metadata.
func (d *Document) SetName(name string) error {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()

	return d.saveDocumentMeta()
}

// Sheets returns a copy of the sheet list.
func (d *Document) Sheets() []Sheet {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.sheets)
}

// ActiveIndex returns the index of the active sheet.
func (d *Document) ActiveIndex() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.active
}

// ActiveSheet returns the active sheet.
func (d *Document) ActiveSheet() Sheet {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.sheets[d.active]
}

// Camera returns the active sheet's camera.
func (d *Document) Camera() chunk.Camera {
	return d.ActiveSheet().Camera
}

// SetCamera records the active sheet's camera, clamped. It is persisted
// with the sheet metadata on the next switch or flush.
func (d *Document) SetCamera(cam chunk.Camera) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sheets[d.active].Camera = cam.Clamped()
}

// StrokeCounter returns the id the next stroke will get.
func (d *Document) StrokeCounter() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.counter
}

// Dirty reports whether the document changed since it was last archived.
func (d *Document) Dirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.dirty
}

// MarkClean clears the dirty flag after a successful archive save.
func (d *Document) MarkClean() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dirty = false
}

// LoadedStrokes returns the strokes of the working set in ascending id order,
// which is draw order. The strokes are shared and must not be modified.
func (d *Document) LoadedStrokes() []*stroke.Stroke {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.strokes)
}

// LoadedChunkIDs returns the ids of the loaded chunks in ascending order.
func (d *Document) LoadedChunkIDs() []chunk.ID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]chunk.ID, 0, len(d.loaded))
	for id := range d.loaded {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// UnsavedChunkIDs returns the loaded chunks whose last save failed.
func (d *Document) UnsavedChunkIDs() []chunk.ID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []chunk.ID

	for id, c := range d.loaded {
		if c.unsaved {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

// State returns a summary of the document.
func (d *Document) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return State{
		Name:          d.name,
		Sheets:        slices.Clone(d.sheets),
		ActiveSheet:   d.active,
		StrokeCounter: d.counter,
		Dirty:         d.dirty,
		LoadedChunks:  len(d.loaded),
		LoadedStrokes: len(d.strokes),
	}
}
