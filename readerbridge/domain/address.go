package domain

import (
	"fmt"
	"strings"
)

// DefaultReaderAddress is the factory address of Impinj readers.
const DefaultReaderAddress Address = "192.168.254.100"

// Address of a reader or of the tracker.
type Address string

// NewAddress validates the given string and returns it as an Address.
func NewAddress(address string) (Address, error) {
	address = strings.TrimSpace(address)
	if len(address) == 0 {
		return "", fmt.Errorf("%w: address cannot be empty", ErrConfiguration)
	}
	return Address(address), nil
}
