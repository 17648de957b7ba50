package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/storage"
)

// File extensions in the library directory.
const (
	Ext          = ".tar.gz"
	ThumbnailExt = ".png"
)

// ErrNotFound is returned when the named archive does not exist.
var ErrNotFound = errors.New("archive not found")

// Config holds configuration for a Codec.
type Config struct {
	LibraryDir string
	Logger     *slog.Logger
}

// Codec saves and opens named archives in a library directory.
type Codec struct {
	dir    string
	logger *slog.Logger
}

// New creates a codec, creating the library directory if needed.
func New(cfg Config) (*Codec, error) {
	if cfg.LibraryDir == "" {
		return nil, errors.New("archive: library directory is required")
	}

	if err := os.MkdirAll(cfg.LibraryDir, 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	return &Codec{dir: cfg.LibraryDir, logger: logging.OrNop(cfg.Logger)}, nil
}

// Dir returns the library directory.
func (c *Codec) Dir() string {
	return c.dir
}

// Path returns the archive file of a document name.
func (c *Codec) Path(name string) string {
	return filepath.Join(c.dir, name+Ext)
}

// ThumbnailPath returns the library thumbnail of a document name.
func (c *Codec) ThumbnailPath(name string) string {
	return filepath.Join(c.dir, name+ThumbnailExt)
}

// Exists reports whether an archive with the name is present.
func (c *Codec) Exists(name string) bool {
	_, err := os.Stat(c.Path(name))

	return err == nil
}

// Save packs workingDir into the named archive. The archive is written to a
// temporary file first and renamed into place, so an existing archive is
// never left half written.
func (c *Codec) Save(name, workingDir string) (string, error) {
	dst := c.Path(name)

	tmp, err := os.CreateTemp(c.dir, storage.TempPrefix+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}

	tmpName := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := Pack(workingDir, tmp); err != nil {
		tmp.Close()

		return "", err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return "", fmt.Errorf("sync archive: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("commit archive: %w", err)
	}

	committed = true

	c.logger.Info("saved archive", "name", name, "path", dst)

	return dst, nil
}

// SaveThumbnail writes the library thumbnail for a document name.
func (c *Codec) SaveThumbnail(name string, png []byte) error {
	tmp, err := os.CreateTemp(c.dir, storage.TempPrefix+name+"-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return os.Rename(tmpName, c.ThumbnailPath(name))
}

// Open replaces the contents of workingDir with the named archive.
// On failure the partially extracted directory is removed.
func (c *Codec) Open(name, workingDir string) error {
	f, err := os.Open(c.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.RemoveAll(workingDir); err != nil {
		return fmt.Errorf("clear working directory: %w", err)
	}

	if err := Unpack(f, workingDir); err != nil {
		_ = os.RemoveAll(workingDir)

		return fmt.Errorf("open %q: %w", name, err)
	}

	c.logger.Info("opened archive", "name", name, "dir", workingDir)

	return nil
}
