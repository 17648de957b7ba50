package document

import (
	"errors"
	"fmt"
	"slices"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/storage"
	"github.com/serroba/sketchbook/internal/stroke"
	"golang.org/x/sync/errgroup"
)

// LoadReport lists the outcome of a load batch.
type LoadReport struct {
	Loaded []chunk.ID
	Failed []chunk.ID
}

// EvictReport lists the outcome of an eviction batch.
type EvictReport struct {
	Evicted []chunk.ID
	Failed  []chunk.ID
}

// LoadChunks reads the given chunks of the active sheet and adds them to the
// working set. Already loaded chunks are skipped. Reads run concurrently; a
// chunk that fails to read is logged and left out of the working set, except
// for corrupt chunks, which the store has moved aside and which join the
// working set empty.
func (d *Document) LoadChunks(ids []chunk.ID) LoadReport {
	sheetID := d.ActiveSheet().ID

	d.mu.RLock()
	want := make([]chunk.ID, 0, len(ids))

	for _, id := range ids {
		if _, ok := d.loaded[id]; !ok && !slices.Contains(want, id) {
			want = append(want, id)
		}
	}
	d.mu.RUnlock()

	results := make([]*storage.Chunk, len(want))

	var g errgroup.Group

	g.SetLimit(d.readLimit)

	for i, id := range want {
		g.Go(func() error {
			c, err := d.readChunk(sheetID, id)
			if err != nil {
				d.logger.Warn("load chunk", "sheet", sheetID, "chunk", id, "error", err)

				return nil
			}

			results[i] = c

			return nil
		})
	}

	_ = g.Wait()

	var report LoadReport

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, c := range results {
		if c == nil {
			report.Failed = append(report.Failed, want[i])

			continue
		}

		d.install(c)
		report.Loaded = append(report.Loaded, c.ID)
	}

	d.sortStrokes()

	return report
}

// readChunk reads one chunk, mapping corrupt files to an empty chunk.
func (d *Document) readChunk(sheetID uint64, id chunk.ID) (*storage.Chunk, error) {
	c, err := d.store.LoadChunk(sheetID, id)
	if errors.Is(err, storage.ErrCorrupt) {
		d.logger.Warn("chunk corrupt, starting it empty", "sheet", sheetID, "chunk", id, "error", err)

		return &storage.Chunk{ID: id}, nil
	}

	return c, err
}

// install adds a chunk to the working set. Callers hold mu and re-sort the
// stroke list afterwards.
func (d *Document) install(c *storage.Chunk) {
	if _, ok := d.loaded[c.ID]; ok {
		return
	}

	for _, s := range c.Strokes {
		if s.ChunkID != c.ID {
			d.logger.Debug("stroke stored under a different chunk", "stroke", s.ID, "owner", s.ChunkID, "chunk", c.ID)
			s.ChunkID = c.ID
		}
	}

	d.loaded[c.ID] = &loadedChunk{Chunk: c}
	d.strokes = append(d.strokes, c.Strokes...)
}

func (d *Document) sortStrokes() {
	slices.SortFunc(d.strokes, func(a, b *stroke.Stroke) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}

		return 0
	})
}

// ensureLoaded returns the working-set entry for id, reading it on a miss.
func (d *Document) ensureLoaded(id chunk.ID) (*loadedChunk, error) {
	d.mu.RLock()
	lc, ok := d.loaded[id]
	d.mu.RUnlock()

	if ok {
		return lc, nil
	}

	sheetID := d.ActiveSheet().ID

	c, err := d.readChunk(sheetID, id)
	if err != nil {
		return nil, fmt.Errorf("load chunk %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.install(c)
	d.sortStrokes()

	return d.loaded[id], nil
}

// saveChunk persists one working-set entry and updates its unsaved flag.
func (d *Document) saveChunk(sheetID uint64, lc *loadedChunk) error {
	err := d.store.SaveChunk(sheetID, lc.Chunk)

	d.mu.Lock()
	lc.unsaved = err != nil
	d.mu.Unlock()

	return err
}

// EvictChunks saves and removes the given chunks from the working set.
// Chunks are written only when their last save failed, since strokes are
// persisted as they are finalized. A chunk that cannot be saved stays loaded.
func (d *Document) EvictChunks(ids []chunk.ID) EvictReport {
	sheetID := d.ActiveSheet().ID

	var report EvictReport

	evict := make(map[chunk.ID]struct{}, len(ids))

	for _, id := range ids {
		d.mu.RLock()
		lc, ok := d.loaded[id]
		unsaved := ok && lc.unsaved
		d.mu.RUnlock()

		if !ok {
			continue
		}

		if unsaved {
			if err := d.saveChunk(sheetID, lc); err != nil {
				d.logger.Warn("save chunk before eviction", "sheet", sheetID, "chunk", id, "error", err)
				report.Failed = append(report.Failed, id)

				continue
			}
		}

		evict[id] = struct{}{}
		report.Evicted = append(report.Evicted, id)
	}

	if len(evict) == 0 {
		return report
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for id := range evict {
		delete(d.loaded, id)
	}

	d.strokes = slices.DeleteFunc(d.strokes, func(s *stroke.Stroke) bool {
		_, gone := evict[s.ChunkID]

		return gone
	})

	return report
}

// EvictAll saves and evicts every loaded chunk.
func (d *Document) EvictAll() EvictReport {
	return d.EvictChunks(d.LoadedChunkIDs())
}

// dropWorkingSet forgets every loaded chunk without saving.
func (d *Document) dropWorkingSet() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.loaded = make(map[chunk.ID]*loadedChunk)
	d.strokes = nil
}

// Flush persists every unsaved chunk, the metadata of all sheets and the
// document metadata, without evicting anything.
func (d *Document) Flush() error {
	sheetID := d.ActiveSheet().ID

	var errs []error

	for _, id := range d.UnsavedChunkIDs() {
		d.mu.RLock()
		lc := d.loaded[id]
		d.mu.RUnlock()

		if err := d.saveChunk(sheetID, lc); err != nil {
			errs = append(errs, fmt.Errorf("chunk %s: %w", id, err))
		}
	}

	for _, s := range d.Sheets() {
		if err := d.saveSheetMeta(s); err != nil {
			errs = append(errs, fmt.Errorf("sheet %d metadata: %w", s.ID, err))
		}
	}

	if err := d.saveDocumentMeta(); err != nil {
		errs = append(errs, fmt.Errorf("document metadata: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrFlushFailed, errors.Join(errs...))
	}

	return nil
}
