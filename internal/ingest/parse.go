package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"groundstation/internal/telemetry"
)

var (
	// ErrEmptyLine marks a blank record.
	ErrEmptyLine = errors.New("empty line")
	// ErrMalformed marks a record with a value that is not a decimal number.
	ErrMalformed = errors.New("malformed record")
)

// ParseError identifies the offending field of a malformed record.
type ParseError struct {
	Field int
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: field %d %q: %v", ErrMalformed, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// ParseLine decodes one comma-separated record. widthHint sizes the result and
// is not enforced; the buffer owns the width check.
func ParseLine(line string, widthHint int) (telemetry.Row, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, ErrEmptyLine
	}
	if widthHint < 1 {
		widthHint = 1
	}
	row := make(telemetry.Row, 0, widthHint)
	field := 0
	for value := range strings.SplitSeq(trimmed, ",") {
		value = strings.TrimSpace(value)
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) {
				err = numErr.Err
			}
			return nil, &ParseError{Field: field, Value: value, Err: err}
		}
		row = append(row, f)
		field++
	}
	return row, nil
}
