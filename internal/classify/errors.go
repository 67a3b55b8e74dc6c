package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCallRow means the row is neither a missed nor an answered call.
	ErrNotCallRow = errors.New("row is not a missed or answered call")

	// ErrMissingField means a required row field is empty.
	ErrMissingField = errors.New("required field missing")

	// ErrUnparseableTimestamp means no timestamp strategy resolved the text.
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")
)

// ParseError describes why a row produced no event.
type ParseError struct {
	SourceIndex string
	Field       string
	Value       string
	Err         error
}

func (e *ParseError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("row %s: %s %q: %v", e.SourceIndex, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("row %s: %s: %v", e.SourceIndex, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseFailure reports whether err is a malformed-row failure, as opposed
// to a well-formed row that simply is not a call.
func IsParseFailure(err error) bool {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return false
	}
	return !errors.Is(pe.Err, ErrNotCallRow)
}
