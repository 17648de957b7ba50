// Package archive packs a sketchbook working directory into a single
// .tar.gz file and unpacks it again.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/serroba/sketchbook/internal/storage"
)

// Common errors.
var (
	ErrCorrupt    = errors.New("archive corrupt")
	ErrUnsafePath = errors.New("archive entry escapes the destination")
)

// Pack writes every directory and regular file under srcDir to w as a
// gzip-compressed tar stream. Entry names are slash-separated paths relative
// to srcDir. Other file types are skipped.
func Pack(srcDir string, w io.Writer) error {
	gw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("gzip writer: %w", err)
	}

	tw := tar.NewWriter(gw)

	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		// Leftovers of interrupted writes stay out of the archive.
		if strings.HasPrefix(d.Name(), storage.TempPrefix) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		return addEntry(tw, p, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		return fmt.Errorf("pack %s: %w", srcDir, walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	if err := gw.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	return nil
}

func addEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	switch {
	case info.IsDir():
		return tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     name + "/",
			Mode:     0o755,
			ModTime:  info.ModTime(),
		})
	case info.Mode().IsRegular():
	default:
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if _, err := io.Copy(tw, f); err != nil {
		return err
	}

	return nil
}

// Unpack extracts a stream written by Pack into dstDir, creating it if
// needed. Absolute names, names that climb out of dstDir and link entries
// are rejected with ErrUnsafePath. Streams that are not gzip-compressed tar
// or end early fail with ErrCorrupt.
func Unpack(r io.Reader, dstDir string) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gr)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		if err := extract(tr, hdr, dstDir); err != nil {
			return err
		}
	}
}

func extract(tr *tar.Reader, hdr *tar.Header, dstDir string) error {
	target, err := safeJoin(dstDir, hdr.Name)
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
	case tar.TypeSymlink, tar.TypeLink:
		return fmt.Errorf("%w: link %q", ErrUnsafePath, hdr.Name)
	default:
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, tr); err != nil {
		f.Close()

		// Write failures come back as *fs.PathError; anything else is the stream.
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return err
		}

		return fmt.Errorf("%w: %s: %w", ErrCorrupt, hdr.Name, err)
	}

	return f.Close()
}

func safeJoin(dstDir, name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	return filepath.Join(dstDir, filepath.FromSlash(clean)), nil
}
