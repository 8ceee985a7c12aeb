package ledger

import (
	"errors"
	"fmt"
)

// ErrMalformedEntry is matched by every line decoding failure.
var ErrMalformedEntry = errors.New("malformed ledger entry")

// ParseError describes a ledger line that could not be decoded.
type ParseError struct {
	Line   int // 1-based line number, 0 when unknown
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d %q: %s", ErrMalformedEntry, e.Line, e.Text, e.Reason)
	}
	return fmt.Sprintf("%s: %q: %s", ErrMalformedEntry, e.Text, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedEntry.
func (e *ParseError) Unwrap() error {
	return ErrMalformedEntry
}
