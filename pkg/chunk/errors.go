package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrBitUnderflow is returned when a read asks for more bits than remain in
	// the current reader. The decode call that hit it cannot continue.
	ErrBitUnderflow = errors.New("chunk: bit underflow")

	// ErrMalformed is returned for structurally invalid data: a bad
	// bits-per-entry, a palette index out of range, a corrupt count or mask.
	ErrMalformed = errors.New("chunk: malformed data")
)

// TrailingDataError reports bytes left in a payload after a chunk was fully
// assembled. The chunk returned alongside it is complete.
type TrailingDataError struct {
	X, Z  int32
	Bytes int
}

func (e *TrailingDataError) Error() string {
	return fmt.Sprintf("chunk (%d,%d): %d trailing bytes after assembly", e.X, e.Z, e.Bytes)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
