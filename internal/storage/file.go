package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/logging"
)

// File names inside the working directory.
const (
	MetaFile      = "meta"
	ThumbnailFile = "thumbnail.png"
	damagedSuffix = ".damaged"

	// TempPrefix starts the name of every file written by an unfinished
	// atomic write.
	TempPrefix = ".tmp-"
)

// FileStore keeps one file per chunk under a directory per sheet:
//
//	<dir>/meta
//	<dir>/<sheet id>/meta
//	<dir>/<sheet id>/thumbnail.png
//	<dir>/<sheet id>/<chunk id>
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// FileStoreConfig holds configuration for creating a file store.
type FileStoreConfig struct {
	Dir    string
	Logger *slog.Logger
}

// NewFileStore creates a store rooted at cfg.Dir, creating the directory if needed.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("storage: working directory is required")
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	return &FileStore{dir: cfg.Dir, logger: logging.OrNop(cfg.Logger)}, nil
}

// Dir returns the working directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) sheetDir(sheetID uint64) string {
	return filepath.Join(s.dir, strconv.FormatUint(sheetID, 10))
}

func (s *FileStore) chunkPath(sheetID uint64, id chunk.ID) string {
	return filepath.Join(s.sheetDir(sheetID), id.String())
}

// LoadChunk reads a chunk file. Files that fail to decode are moved aside so
// that a later save of the same chunk never overwrites their bytes.
func (s *FileStore) LoadChunk(sheetID uint64, id chunk.ID) (*Chunk, error) {
	path := s.chunkPath(sheetID, id)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Chunk{ID: id}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", id, err)
	}

	c, err := DecodeChunk(bytes.NewReader(data))
	if err == nil && c.ID != id {
		err = fmt.Errorf("%w: file holds chunk %s", ErrCorrupt, c.ID)
	}

	if err != nil {
		if mvErr := os.Rename(path, path+damagedSuffix); mvErr != nil {
			s.logger.Warn("quarantine damaged chunk", "path", path, "error", mvErr)
		}

		return nil, fmt.Errorf("%w: chunk %s: %w", ErrCorrupt, id, err)
	}

	return c, nil
}

// SaveChunk writes a chunk file atomically, or removes it when the chunk is empty.
func (s *FileStore) SaveChunk(sheetID uint64, c *Chunk) error {
	path := s.chunkPath(sheetID, c.ID)

	if c.Empty() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove empty chunk %s: %w", c.ID, err)
		}

		return nil
	}

	data, err := encodeBytes(func(w io.Writer) error { return EncodeChunk(w, c) })
	if err != nil {
		return fmt.Errorf("encode chunk %s: %w", c.ID, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write chunk %s: %w", c.ID, err)
	}

	return nil
}

// ListChunks returns the ids of the chunk files of a sheet.
func (s *FileStore) ListChunks(sheetID uint64) ([]chunk.ID, error) {
	entries, err := os.ReadDir(s.sheetDir(sheetID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var ids []chunk.ID

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		id, err := chunk.ParseID(e.Name())
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids, nil
}

// CreateSheet creates the sheet directory.
func (s *FileStore) CreateSheet(sheetID uint64) error {
	return os.MkdirAll(s.sheetDir(sheetID), 0o755)
}

// DeleteSheet removes the sheet directory and everything in it.
func (s *FileStore) DeleteSheet(sheetID uint64) error {
	return os.RemoveAll(s.sheetDir(sheetID))
}

// ListSheets returns the numeric sheet directories in ascending order.
func (s *FileStore) ListSheets() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var ids []uint64

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids, nil
}

// LoadSheetMeta reads <sheet>/meta.
func (s *FileStore) LoadSheetMeta(sheetID uint64) (SheetMeta, error) {
	data, err := readFile(filepath.Join(s.sheetDir(sheetID), MetaFile))
	if err != nil {
		return SheetMeta{}, err
	}

	return DecodeSheetMeta(bytes.NewReader(data))
}

// SaveSheetMeta writes <sheet>/meta.
func (s *FileStore) SaveSheetMeta(sheetID uint64, m SheetMeta) error {
	data, err := encodeBytes(func(w io.Writer) error { return EncodeSheetMeta(w, m) })
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.sheetDir(sheetID), 0o755); err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(s.sheetDir(sheetID), MetaFile), data)
}

// LoadThumbnail reads <sheet>/thumbnail.png.
func (s *FileStore) LoadThumbnail(sheetID uint64) ([]byte, error) {
	return readFile(filepath.Join(s.sheetDir(sheetID), ThumbnailFile))
}

// SaveThumbnail writes <sheet>/thumbnail.png.
func (s *FileStore) SaveThumbnail(sheetID uint64, png []byte) error {
	if err := os.MkdirAll(s.sheetDir(sheetID), 0o755); err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(s.sheetDir(sheetID), ThumbnailFile), png)
}

// LoadDocumentMeta reads <dir>/meta.
func (s *FileStore) LoadDocumentMeta() (DocumentMeta, error) {
	data, err := readFile(filepath.Join(s.dir, MetaFile))
	if err != nil {
		return DocumentMeta{}, err
	}

	return DecodeDocumentMeta(bytes.NewReader(data))
}

// SaveDocumentMeta writes <dir>/meta.
func (s *FileStore) SaveDocumentMeta(m DocumentMeta) error {
	data, err := encodeBytes(func(w io.Writer) error { return EncodeDocumentMeta(w, m) })
	if err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(s.dir, MetaFile), data)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	return data, err
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), TempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return nil
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
