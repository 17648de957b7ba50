package session

import (
	"context"
	"fmt"

	"github.com/serroba/sketchbook/internal/document"
)

// reload pages in the active sheet after the working set was replaced.
// Runs on the queue.
func (s *Session) reload() {
	s.pager.Reset()
	s.applyPaging(s.pager.Jump(s.doc.Camera()))
}

// SwitchSheet makes sheet i active and loads the chunks around its camera.
func (s *Session) SwitchSheet(ctx context.Context, i int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.queue.Supersede()

	return s.queue.Do(ctx, func() error {
		if _, err := s.doc.SwitchSheet(i); err != nil {
			return err
		}

		s.reload()
		s.notify(Change{State: true, Strokes: true})

		return nil
	})
}

// AddSheet appends a sheet and returns its index. An empty name picks the
// suggested one.
func (s *Session) AddSheet(ctx context.Context, name string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var index int

	err := s.queue.Do(ctx, func() error {
		i, err := s.doc.AddSheet(name)
		if err != nil {
			return err
		}

		index = i
		s.notify(Change{State: true})

		return nil
	})

	return index, err
}

// RenameSheet renames sheet i.
func (s *Session) RenameSheet(ctx context.Context, i int, name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.queue.Do(ctx, func() error {
		if err := s.doc.RenameSheet(i, name); err != nil {
			return err
		}

		s.notify(Change{State: true})

		return nil
	})
}

// DeleteSheet removes sheet i. When it was the active sheet the new active
// sheet is loaded.
func (s *Session) DeleteSheet(ctx context.Context, i int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if i == s.doc.ActiveIndex() {
		s.queue.Supersede()
	}

	return s.queue.Do(ctx, func() error {
		changed, err := s.doc.DeleteSheet(i)
		if err != nil {
			return err
		}

		if changed {
			s.reload()
		}

		s.notify(Change{State: true, Strokes: changed})

		return nil
	})
}

// ReorderSheets swaps sheets i and j.
func (s *Session) ReorderSheets(ctx context.Context, i, j int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.queue.Do(ctx, func() error {
		if err := s.doc.ReorderSheets(i, j); err != nil {
			return err
		}

		s.notify(Change{State: true})

		return nil
	})
}

// Thumbnail returns the stored thumbnail of sheet i, or nil if it has none.
func (s *Session) Thumbnail(i int) ([]byte, error) {
	sheets := s.doc.Sheets()
	if i < 0 || i >= len(sheets) {
		return nil, fmt.Errorf("%w: %d", document.ErrSheetIndex, i)
	}

	return sheets[i].Thumbnail, nil
}
