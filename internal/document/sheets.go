package document

import (
	"fmt"
	"slices"

	"github.com/serroba/sketchbook/internal/chunk"
)

func (d *Document) checkIndex(i int) error {
	if i < 0 || i >= len(d.sheets) {
		return fmt.Errorf("%w: %d of %d", ErrSheetIndex, i, len(d.sheets))
	}

	return nil
}

func (d *Document) checkNewName(name string, except int) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	if d.nameTaken(name, except) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	return nil
}

// SwitchSheet makes sheet i active. Every loaded chunk is saved and evicted
// first; if any save fails the switch is abandoned with ErrFlushFailed and
// the current sheet stays active. The outgoing sheet's metadata is saved and
// the incoming sheet's camera is returned so the caller can load the chunks
// around it.
func (d *Document) SwitchSheet(i int) (chunk.Camera, error) {
	if err := d.checkIndex(i); err != nil {
		return chunk.Camera{}, err
	}

	outgoing := d.ActiveSheet()

	if report := d.EvictAll(); len(report.Failed) > 0 {
		return chunk.Camera{}, fmt.Errorf("%w: %d chunks of sheet %q", ErrFlushFailed, len(report.Failed), outgoing.Name)
	}

	if err := d.saveSheetMeta(outgoing); err != nil {
		d.logger.Warn("save sheet metadata", "sheet", outgoing.ID, "error", err)
	}

	d.dropWorkingSet()

	d.mu.Lock()
	d.active = i
	cam := d.sheets[i].Camera
	d.mu.Unlock()

	if err := d.saveDocumentMeta(); err != nil {
		d.logger.Warn("save document metadata", "error", err)
	}

	d.logger.Debug("switched sheet", "from", outgoing.ID, "to", d.sheets[i].ID)

	return cam, nil
}

// AddSheet appends a new sheet and returns its index. An empty name picks
// the suggested name.
func (d *Document) AddSheet(name string) (int, error) {
	if name == "" {
		name = d.suggestSheetName()
	}

	if err := d.checkNewName(name, -1); err != nil {
		return 0, err
	}

	sheet := Sheet{ID: d.nextSheetID(), Name: name, Camera: chunk.DefaultCamera}

	if err := d.store.CreateSheet(sheet.ID); err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}

	if err := d.saveSheetMeta(sheet); err != nil {
		_ = d.store.DeleteSheet(sheet.ID)

		return 0, fmt.Errorf("save sheet metadata: %w", err)
	}

	d.mu.Lock()
	d.sheets = append(d.sheets, sheet)
	d.dirty = true
	index := len(d.sheets) - 1
	d.mu.Unlock()

	if err := d.saveDocumentMeta(); err != nil {
		d.logger.Warn("save document metadata", "error", err)
	}

	return index, nil
}

// RenameSheet changes the name of sheet i.
func (d *Document) RenameSheet(i int, name string) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}

	if d.sheets[i].Name == name {
		return nil
	}

	if err := d.checkNewName(name, i); err != nil {
		return err
	}

	renamed := d.sheets[i]
	renamed.Name = name

	if err := d.saveSheetMeta(renamed); err != nil {
		return fmt.Errorf("save sheet metadata: %w", err)
	}

	d.mu.Lock()
	d.sheets[i].Name = name
	d.dirty = true
	d.mu.Unlock()

	return nil
}

// DeleteSheet removes sheet i and its files. Deleting the active sheet
// discards its working set and activates the sheet now at the same index,
// or the last one; the caller then loads the chunks of the new active sheet.
// Deleting a sheet in front of the active one keeps the same sheet active.
func (d *Document) DeleteSheet(i int) (activeChanged bool, err error) {
	if len(d.sheets) <= 1 {
		return false, ErrLastSheet
	}

	if err := d.checkIndex(i); err != nil {
		return false, err
	}

	id := d.sheets[i].ID

	if err := d.store.DeleteSheet(id); err != nil {
		return false, fmt.Errorf("delete sheet: %w", err)
	}

	wasActive := i == d.active
	if wasActive {
		d.dropWorkingSet()
	}

	d.mu.Lock()
	d.sheets = slices.Delete(d.sheets, i, i+1)

	switch {
	case i < d.active:
		d.active--
	case d.active >= len(d.sheets):
		d.active = len(d.sheets) - 1
	}

	d.dirty = true
	d.mu.Unlock()

	if err := d.saveDocumentMeta(); err != nil {
		d.logger.Warn("save document metadata", "error", err)
	}

	return wasActive, nil
}

// ReorderSheets swaps sheets i and j. The active sheet stays active at its
// new position.
func (d *Document) ReorderSheets(i, j int) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}

	if err := d.checkIndex(j); err != nil {
		return err
	}

	if i == j {
		return nil
	}

	d.mu.Lock()
	d.sheets[i], d.sheets[j] = d.sheets[j], d.sheets[i]

	switch d.active {
	case i:
		d.active = j
	case j:
		d.active = i
	}

	d.dirty = true
	d.mu.Unlock()

	if err := d.saveDocumentMeta(); err != nil {
		d.logger.Warn("save document metadata", "error", err)
	}

	return nil
}

// SetThumbnail stores a PNG thumbnail for sheet i.
func (d *Document) SetThumbnail(i int, png []byte) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}

	if err := d.store.SaveThumbnail(d.sheets[i].ID, png); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}

	d.mu.Lock()
	d.sheets[i].Thumbnail = png
	d.mu.Unlock()

	return nil
}
