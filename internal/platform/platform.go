// Package platform wraps filesystem calls whose behavior differs by OS.
package platform

import (
	"errors"
	"fmt"
	"os"

	"github.com/meigma/parcel/internal/sizing"
)

// ErrSymlink is returned when attempting to open a symbolic link.
var ErrSymlink = errors.New("parcel: symbolic link")

// ReadFile reads name under root without following symlinks. The file must
// be regular and no larger than expected bytes; a file that grew while being
// read is reported as changed.
func ReadFile(root *os.Root, name string, expected uint64) ([]byte, error) {
	f, err := OpenFileNoFollow(root, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", name)
	}

	data, err := sizing.ReadAtMost(f, expected)
	if err != nil {
		return nil, fmt.Errorf("file changed during read: %s: %w", name, err)
	}
	if uint64(len(data)) != expected {
		return nil, fmt.Errorf("file changed during read: %s: expected %d bytes, got %d", name, expected, len(data))
	}
	return data, nil
}
