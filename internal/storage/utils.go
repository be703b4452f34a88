package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrInvalidFilename = errors.New("invalid filename")

// SanitizeFilename reduces name to a single path element. Names that are
// absolute or climb out of the directory are rejected, not rewritten.
func SanitizeFilename(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	base := filepath.Base(cleaned)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}
