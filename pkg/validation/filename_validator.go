package validation

import (
	"path/filepath"
	"strings"

	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
)

// FilenameValidator checks names requested from a flat directory store.
type FilenameValidator struct{}

// NewFilenameValidator creates a validator that accepts any extension
func NewFilenameValidator() *FilenameValidator {
	return &FilenameValidator{}
}

// ValidateFilename accepts a single path element. Anything that could resolve
// outside the store is reported as not found, like a missing file.
func (v *FilenameValidator) ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewNotFoundError("File not found", nil)
	}

	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return apperrors.NewNotFoundError("File not found", nil)
	}

	if name != filepath.Base(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return apperrors.NewNotFoundError("File not found", nil)
	}

	return nil
}
