package document_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/storage"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// flakyStore wraps a MemoryStore and fails chunk I/O on demand.
type flakyStore struct {
	*storage.MemoryStore

	mu         sync.Mutex
	failSaves  bool
	failLoads  map[chunk.ID]bool
	saveCalls  int
	loadCalls  int
	failMeta   bool
	deleteFail bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: storage.NewMemoryStore(), failLoads: make(map[chunk.ID]bool)}
}

func (f *flakyStore) setFailSaves(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failSaves = v
}

func (f *flakyStore) SaveChunk(sheetID uint64, c *storage.Chunk) error {
	f.mu.Lock()
	f.saveCalls++
	fail := f.failSaves
	f.mu.Unlock()

	if fail {
		return errDiskFull
	}

	return f.MemoryStore.SaveChunk(sheetID, c)
}

func (f *flakyStore) LoadChunk(sheetID uint64, id chunk.ID) (*storage.Chunk, error) {
	f.mu.Lock()
	f.loadCalls++
	fail := f.failLoads[id]
	f.mu.Unlock()

	if fail {
		return nil, errDiskFull
	}

	return f.MemoryStore.LoadChunk(sheetID, id)
}

func (f *flakyStore) SaveDocumentMeta(m storage.DocumentMeta) error {
	f.mu.Lock()
	fail := f.failMeta
	f.mu.Unlock()

	if fail {
		return errDiskFull
	}

	return f.MemoryStore.SaveDocumentMeta(m)
}

func (f *flakyStore) DeleteSheet(sheetID uint64) error {
	if f.deleteFail {
		return errDiskFull
	}

	return f.MemoryStore.DeleteSheet(sheetID)
}

func fixedClock() func() time.Time {
	t0 := time.UnixMilli(1_700_000_000_000)

	return func() time.Time { return t0 }
}

func newDocument(t *testing.T, store storage.Store) *document.Document {
	t.Helper()

	doc, err := document.New(document.Config{Store: store, Now: fixedClock()})
	require.NoError(t, err)

	return doc
}

// starPoints is a four-pointed star centered on the origin.
func starPoints() []stroke.Point {
	return []stroke.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}, {X: -100, Y: 0}, {X: 0, Y: -100}}
}

// strokeAt returns a small zig-zag that cannot be simplified, centered on (x, y).
func strokeAt(x, y float32) []stroke.Point {
	return []stroke.Point{{X: x - 10, Y: y}, {X: x, Y: y + 10}, {X: x + 10, Y: y}, {X: x, Y: y - 10}}
}

func mustOf(t *testing.T, x, y float64) chunk.ID {
	t.Helper()

	id, err := chunk.Of(x, y)
	require.NoError(t, err)

	return id
}

func requireSorted(t *testing.T, strokes []*stroke.Stroke) {
	t.Helper()

	for i := 1; i < len(strokes); i++ {
		if strokes[i-1].ID >= strokes[i].ID {
			t.Fatalf("strokes not sorted at %d: %d >= %d", i, strokes[i-1].ID, strokes[i].ID)
		}
	}
}

func corruptChunkFile(t *testing.T, dir string, sheetID uint64, id chunk.ID) {
	t.Helper()

	path := filepath.Join(dir, strconv.FormatUint(sheetID, 10), id.String())
	require.NoError(t, os.WriteFile(path, []byte("not a chunk"), 0o644))
}
