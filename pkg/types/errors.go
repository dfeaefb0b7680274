package types

import (
	"errors"
	"fmt"
)

var (
	ErrSelectionTooSmall   = errors.New("selection too small")
	ErrUserCancelled       = errors.New("selection cancelled by user")
	ErrSelectionTimeout    = errors.New("selection timed out")
	ErrSelectionSuperseded = errors.New("selection superseded by a newer one")

	// ErrBackend is returned when the analysis server answers with an error body
	ErrBackend = errors.New("analysis backend error")
)

// DecodeError reports a source raster that could not be read
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NetworkError wraps transport failures talking to the analysis server
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsCancellation reports whether err is one of the selection outcomes that
// should be shown to the user as a cancellation rather than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrSelectionTooSmall) ||
		errors.Is(err, ErrUserCancelled) ||
		errors.Is(err, ErrSelectionTimeout) ||
		errors.Is(err, ErrSelectionSuperseded)
}
