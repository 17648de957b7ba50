package session

import (
	"context"
	"fmt"

	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/library"
)

// Save archives the working directory into the library under name, or under
// the current name when name is empty. It runs after every queued chunk
// save. The active sheet's thumbnail and the library thumbnail are rendered
// from the loaded strokes; thumbnail failures are logged and do not fail the
// save. It returns the archive path.
func (s *Session) Save(ctx context.Context, name string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	if name == "" {
		name = s.doc.Name()
	}

	if name == "" {
		return "", ErrUnnamed
	}

	if err := document.ValidateName(name); err != nil {
		return "", err
	}

	var path string

	err := s.queue.Do(ctx, func() error {
		p, err := s.save(ctx, name)
		if err != nil {
			return err
		}

		path = p
		s.notify(Change{State: true})

		return nil
	})

	return path, err
}

func (s *Session) save(ctx context.Context, name string) (string, error) {
	previous := s.doc.Name()

	if err := s.doc.SetName(name); err != nil {
		return "", fmt.Errorf("save document name: %w", err)
	}

	restore := func() {
		if err := s.doc.SetName(previous); err != nil {
			s.logger.Warn("restore document name", "name", previous, "error", err)
		}
	}

	s.writeThumbnails(name)

	if err := s.doc.Flush(); err != nil {
		restore()

		return "", err
	}

	path, err := s.codec.Save(name, s.workDir)
	if err != nil {
		restore()

		return "", fmt.Errorf("save %q: %w", name, err)
	}

	s.doc.MarkClean()

	if s.library != nil {
		rec := library.Record{
			Name:          name,
			Sheets:        len(s.doc.Sheets()),
			StrokeCounter: s.doc.StrokeCounter(),
			SavedAt:       s.now(),
		}

		if err := s.library.Record(ctx, rec); err != nil {
			s.logger.Warn("catalog record", "name", name, "error", err)
		}
	}

	s.logger.Info("saved sketchbook", "name", name, "path", path)

	return path, nil
}

func (s *Session) writeThumbnails(name string) {
	sheetPNG, libraryPNG, err := s.renderer.Both(s.doc.LoadedStrokes(), s.doc.Camera(), s.Viewport())
	if err != nil {
		s.logger.Warn("render thumbnails", "name", name, "error", err)

		return
	}

	if err := s.doc.SetThumbnail(s.doc.ActiveIndex(), sheetPNG); err != nil {
		s.logger.Warn("sheet thumbnail", "name", name, "error", err)
	}

	if err := s.codec.SaveThumbnail(name, libraryPNG); err != nil {
		s.logger.Warn("library thumbnail", "name", name, "error", err)
	}
}
