package domain

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when the tracker asked the bridge to back off.
// Delay is how long until the next batch may be sent.
type RateLimitError struct {
	Delay   time.Duration
	Message string
}

// Error returns the error message, implementing the error interface.
func (e *RateLimitError) Error() string {
	return e.Message
}

// ConnectError describes a reader session that could not be established or
// was lost. The tracker state is not affected by it.
type ConnectError struct {
	Address Address
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("reader %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ErrTransportNotReady indicates that the transport layer is not ready to send data.
var ErrTransportNotReady = errors.New("transport is not ready")

// ErrConfiguration marks an invalid bridge or session setting.
var ErrConfiguration = errors.New("invalid configuration")

// ErrNotConnected is returned by session operations that need an open reader session.
var ErrNotConnected = errors.New("reader is not connected")

// ErrAlreadyConnected is returned by Connect while a session is open.
var ErrAlreadyConnected = errors.New("reader is already connected")
