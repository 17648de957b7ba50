// Package library manages the saved sketchbooks in a library directory:
// listing, sorting, renaming and deleting archives with their thumbnails.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/logging"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Common errors.
var (
	ErrNotFound = errors.New("sketchbook not found")
	ErrExists   = errors.New("sketchbook already exists")
)

// SortBy selects the listing key.
type SortBy int

// Listing keys.
const (
	ByName SortBy = iota
	ByDate
)

// Order selects the listing direction.
type Order int

// Listing directions.
const (
	Ascending Order = iota
	Descending
)

// ParseSort maps "name"/"date" and "asc"/"desc" to listing options.
func ParseSort(by, order string) (SortBy, Order, error) {
	var (
		s SortBy
		o Order
	)

	switch strings.ToLower(by) {
	case "", "name":
		s = ByName
	case "date", "modified":
		s = ByDate
	default:
		return 0, 0, fmt.Errorf("unknown sort key %q", by)
	}

	switch strings.ToLower(order) {
	case "", "asc", "ascending":
		o = Ascending
	case "desc", "descending":
		o = Descending
	default:
		return 0, 0, fmt.Errorf("unknown sort order %q", order)
	}

	return s, o, nil
}

// Entry is one saved sketchbook.
type Entry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`

	// From the catalog; zero when the archive was never indexed.
	Sheets        int    `json:"sheets,omitempty"`
	StrokeCounter uint64 `json:"strokeCounter,omitempty"`
}

// Config holds configuration for a Library.
type Config struct {
	Dir     string
	Catalog *Catalog
	Logger  *slog.Logger
}

// Library is a directory of saved sketchbooks.
type Library struct {
	dir     string
	catalog *Catalog
	logger  *slog.Logger
}

// New creates a library over cfg.Dir. The catalog is optional.
func New(cfg Config) (*Library, error) {
	if cfg.Dir == "" {
		return nil, errors.New("library: directory is required")
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	return &Library{dir: cfg.Dir, catalog: cfg.Catalog, logger: logging.OrNop(cfg.Logger)}, nil
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// Catalog returns the catalog, which may be nil.
func (l *Library) Catalog() *Catalog {
	return l.catalog
}

func (l *Library) archivePath(name string) string {
	return filepath.Join(l.dir, name+archive.Ext)
}

func (l *Library) thumbnailPath(name string) string {
	return filepath.Join(l.dir, name+archive.ThumbnailExt)
}

// List returns the saved sketchbooks in the requested order. Hidden files,
// including the recovery archive, are not listed.
func (l *Library) List(ctx context.Context, by SortBy, order Order) ([]Entry, error) {
	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}

	var records map[string]Record

	if l.catalog != nil {
		records, err = l.catalog.All(ctx)
		if err != nil {
			l.logger.Warn("catalog unavailable", "error", err)
		}
	}

	var entries []Entry

	for _, de := range dirEntries {
		fileName := de.Name()
		if de.IsDir() || strings.HasPrefix(fileName, ".") || !strings.HasSuffix(fileName, archive.Ext) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		name := strings.TrimSuffix(fileName, archive.Ext)
		e := Entry{
			Name:       name,
			Path:       filepath.Join(l.dir, fileName),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		}

		if _, err := os.Stat(l.thumbnailPath(name)); err == nil {
			e.Thumbnail = l.thumbnailPath(name)
		}

		if r, ok := records[name]; ok {
			e.Sheets = r.Sheets
			e.StrokeCounter = r.StrokeCounter
		}

		entries = append(entries, e)
	}

	sortEntries(entries, by, order)

	return entries, nil
}

func sortEntries(entries []Entry, by SortBy, order Order) {
	coll := collate.New(language.Und, collate.IgnoreCase)

	byName := func(a, b Entry) int {
		if c := coll.CompareString(a.Name, b.Name); c != 0 {
			return c
		}

		return strings.Compare(a.Name, b.Name)
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		c := 0

		if by == ByDate {
			c = a.ModifiedAt.Compare(b.ModifiedAt)
		}

		if c == 0 {
			c = byName(a, b)
		}

		if order == Descending {
			c = -c
		}

		return c
	})
}

// Get returns the entry for name.
func (l *Library) Get(ctx context.Context, name string) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(l.archivePath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err != nil {
		return Entry{}, err
	}

	e := Entry{Name: name, Path: l.archivePath(name), Size: info.Size(), ModifiedAt: info.ModTime()}

	if _, err := os.Stat(l.thumbnailPath(name)); err == nil {
		e.Thumbnail = l.thumbnailPath(name)
	}

	if l.catalog != nil {
		if r, err := l.catalog.Get(ctx, name); err == nil {
			e.Sheets = r.Sheets
			e.StrokeCounter = r.StrokeCounter
		}
	}

	return e, nil
}

// ValidateName checks a sketchbook name. The rules are the same as for sheets.
func ValidateName(name string) error {
	return document.ValidateName(name)
}

// Rename moves an archive and its thumbnail to a new name.
func (l *Library) Rename(ctx context.Context, from, to string) error {
	if err := ValidateName(from); err != nil {
		return err
	}

	if err := ValidateName(to); err != nil {
		return err
	}

	if from == to {
		return nil
	}

	if _, err := os.Stat(l.archivePath(from)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrNotFound, from)
	}

	if _, err := os.Stat(l.archivePath(to)); err == nil {
		return fmt.Errorf("%w: %q", ErrExists, to)
	}

	if err := os.Rename(l.archivePath(from), l.archivePath(to)); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}

	if err := os.Rename(l.thumbnailPath(from), l.thumbnailPath(to)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("rename thumbnail", "from", from, "to", to, "error", err)
	}

	if l.catalog != nil {
		if err := l.catalog.Rename(ctx, from, to); err != nil {
			l.logger.Warn("catalog rename", "from", from, "to", to, "error", err)
		}
	}

	l.logger.Info("renamed sketchbook", "from", from, "to", to)

	return nil
}

// Delete removes an archive and its thumbnail.
func (l *Library) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	if err := os.Remove(l.archivePath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}

		return fmt.Errorf("delete archive: %w", err)
	}

	if err := os.Remove(l.thumbnailPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("delete thumbnail", "name", name, "error", err)
	}

	if l.catalog != nil {
		if err := l.catalog.Delete(ctx, name); err != nil {
			l.logger.Warn("catalog delete", "name", name, "error", err)
		}
	}

	l.logger.Info("deleted sketchbook", "name", name)

	return nil
}

// Record stores catalog details for a saved archive. It is a no-op without a catalog.
func (l *Library) Record(ctx context.Context, r Record) error {
	if l.catalog == nil {
		return nil
	}

	return l.catalog.Put(ctx, r)
}
