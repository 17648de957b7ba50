package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/storage"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *storage.FileStore {
	t.Helper()

	store, err := storage.NewFileStore(storage.FileStoreConfig{Dir: filepath.Join(t.TempDir(), "work")})
	require.NoError(t, err)

	return store
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	t.Parallel()

	_, err := storage.NewFileStore(storage.FileStoreConfig{})
	require.Error(t, err)
}

func TestFileStore_ChunkRoundTrip(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	c := sampleChunk()

	require.NoError(t, store.CreateSheet(5))
	require.NoError(t, store.SaveChunk(5, c))

	path := filepath.Join(store.Dir(), "5", c.ID.String())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected chunk file at %s: %v", path, err)
	}

	got, err := store.LoadChunk(5, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Strokes, len(c.Strokes))

	ids, err := store.ListChunks(5)
	require.NoError(t, err)
	require.Equal(t, []chunk.ID{c.ID}, ids)
}

func TestFileStore_MissingChunkIsEmpty(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)

	c, err := store.LoadChunk(1, 77)
	require.NoError(t, err)
	require.True(t, c.Empty())
	require.Equal(t, chunk.ID(77), c.ID)
}

func TestFileStore_SavingEmptyChunkDeletesFile(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	c := sampleChunk()

	require.NoError(t, store.SaveChunk(1, c))

	c.Strokes = nil
	require.NoError(t, store.SaveChunk(1, c))

	_, err := os.Stat(filepath.Join(store.Dir(), "1", c.ID.String()))
	require.True(t, errors.Is(err, os.ErrNotExist), "expected file to be removed, got %v", err)

	// Removing again is not an error.
	require.NoError(t, store.SaveChunk(1, c))
}

func TestFileStore_CorruptChunkIsQuarantined(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	id := chunk.MustPack(3, 4)
	path := filepath.Join(store.Dir(), "1", id.String())

	require.NoError(t, store.CreateSheet(1))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := store.LoadChunk(1, id)
	require.ErrorIs(t, err, storage.ErrCorrupt)

	damaged, err := os.ReadFile(path + ".damaged")
	require.NoError(t, err)
	require.Equal(t, "garbage", string(damaged))

	// The chunk now reads as empty, and the damaged copy is not listed.
	c, err := store.LoadChunk(1, id)
	require.NoError(t, err)
	require.True(t, c.Empty())

	ids, err := store.ListChunks(1)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestFileStore_ChunkIDMismatchIsCorrupt(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	c := sampleChunk()
	require.NoError(t, store.SaveChunk(1, c))

	other := chunk.MustPack(1, 1)
	require.NoError(t, os.Rename(
		filepath.Join(store.Dir(), "1", c.ID.String()),
		filepath.Join(store.Dir(), "1", other.String()),
	))

	_, err := store.LoadChunk(1, other)
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestFileStore_Sheets(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)

	for _, id := range []uint64{300, 20, 1000} {
		require.NoError(t, store.CreateSheet(id))
	}

	// Non-numeric directories and plain files are ignored.
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "tmp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "42"), nil, 0o644))

	ids, err := store.ListSheets()
	require.NoError(t, err)
	require.Equal(t, []uint64{20, 300, 1000}, ids)

	require.NoError(t, store.SaveChunk(300, sampleChunk()))
	require.NoError(t, store.DeleteSheet(300))

	ids, err = store.ListSheets()
	require.NoError(t, err)
	require.Equal(t, []uint64{20, 1000}, ids)

	chunks, err := store.ListChunks(300)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestFileStore_Metadata(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)

	_, err := store.LoadDocumentMeta()
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.LoadSheetMeta(8)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.LoadThumbnail(8)
	require.ErrorIs(t, err, storage.ErrNotFound)

	doc := storage.DocumentMeta{Name: "pad", StrokeCounter: 12, SheetIDs: []uint64{8}}
	require.NoError(t, store.SaveDocumentMeta(doc))

	sheet := storage.SheetMeta{Name: "Sheet 1", Camera: chunk.DefaultCamera}
	require.NoError(t, store.SaveSheetMeta(8, sheet))
	require.NoError(t, store.SaveThumbnail(8, []byte{1, 2, 3}))

	gotDoc, err := store.LoadDocumentMeta()
	require.NoError(t, err)
	require.Equal(t, doc, gotDoc)

	gotSheet, err := store.LoadSheetMeta(8)
	require.NoError(t, err)
	require.Equal(t, sheet, gotSheet)

	thumb, err := store.LoadThumbnail(8)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, thumb)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	t.Parallel()

	store := newFileStore(t)
	require.NoError(t, store.SaveChunk(1, sampleChunk()))
	require.NoError(t, store.SaveDocumentMeta(storage.DocumentMeta{SheetIDs: []uint64{1}}))

	err := filepath.WalkDir(store.Dir(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if strings.HasPrefix(d.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", path)
		}

		return nil
	})
	require.NoError(t, err)
}
