package document

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// RecoveryName is reserved for documents rebuilt after an unclean exit.
const RecoveryName = ".recovery"

const maxNameLen = 255

// Name errors.
var (
	ErrInvalidName   = errors.New("invalid name")
	ErrDuplicateName = errors.New("name already in use")
)

// ValidateName checks that name can be used as a sheet or document name,
// both of which end up in file names.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == RecoveryName:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: contains a path separator", ErrInvalidName)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: contains control characters", ErrInvalidName)
	}

	return nil
}

// nameTaken reports whether another sheet than except already uses name.
func (d *Document) nameTaken(name string, except int) bool {
	for i, s := range d.sheets {
		if i != except && s.Name == name {
			return true
		}
	}

	return false
}

// SuggestSheetName returns the first unused "Sheet N", starting at the
// number following the current sheet count.
func (d *Document) SuggestSheetName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.suggestSheetName()
}

func (d *Document) suggestSheetName() string {
	for n := len(d.sheets) + 1; ; n++ {
		name := fmt.Sprintf("Sheet %d", n)
		if !d.nameTaken(name, -1) {
			return name
		}
	}
}
