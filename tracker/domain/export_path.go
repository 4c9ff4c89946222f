package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExportPath is a validated file system path for the rolling log CSV export.
type ExportPath string

// NewExportPath cleans path and rejects characters that are not portable in
// file names.
func NewExportPath(path string) (ExportPath, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("%w: export path cannot be empty", ErrConfiguration)
	}

	cleanPath := filepath.Clean(path)
	if strings.ContainsAny(cleanPath, "<>\"|?*") {
		return "", fmt.Errorf("%w: export path contains invalid characters: %s", ErrConfiguration, cleanPath)
	}

	return ExportPath(cleanPath), nil
}
