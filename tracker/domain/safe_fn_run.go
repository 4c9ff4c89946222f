package domain

import (
	"fmt"
)

// ErrPanic wraps a value recovered by SafeFunctionRun.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// SafeFunctionRun runs fn and converts a panic into an *ErrPanic so that one
// bad record cannot take down the goroutine handling its batch.
func SafeFunctionRun(fn func() error, logger Logger) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ErrPanic{Value: rec}
			logger.Error("recovered panic: %v", rec)
		}
	}()
	return fn()
}
