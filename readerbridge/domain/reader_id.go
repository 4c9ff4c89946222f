package domain

import (
	"fmt"
	"strings"
)

// ReaderID names the bridge in every batch it sends, so the tracker can tell
// streams apart.
type ReaderID string

// NewReaderID trims and validates a reader id.
func NewReaderID(id string) (ReaderID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: reader id must be non empty string", ErrConfiguration)
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return "", fmt.Errorf("%w: reader id %q must not contain whitespace", ErrConfiguration, id)
	}
	return ReaderID(id), nil
}
