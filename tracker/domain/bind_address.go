package domain

import (
	"fmt"
	"net"
	"strconv"
)

// BindAddress is the host:port the tracker listens on for both the report
// ingest stream and the HTTP API.
//
// Valid address formats:
//   - "localhost:8081"
//   - "0.0.0.0:8081"
//   - ":8081" (all interfaces)
//   - "[::1]:8081"
type BindAddress string

// NewBindAddress validates value as a listen address.
func NewBindAddress(value string) (BindAddress, error) {
	if value == "" {
		return "", fmt.Errorf("%w: bind address must be non-empty", ErrConfiguration)
	}

	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return "", fmt.Errorf("%w: invalid bind address format: %w", ErrConfiguration, err)
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return "", fmt.Errorf("%w: port must be a number between 0 and 65535: %s", ErrConfiguration, port)
	}

	return BindAddress(value), nil
}
