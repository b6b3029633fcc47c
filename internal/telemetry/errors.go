package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch marks a row whose width disagrees with the schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrIndexOutOfRange marks a column index outside the schema.
	ErrIndexOutOfRange = errors.New("column index out of range")
	// ErrUnknownColumn marks a column name the schema does not define.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidSchema marks an unusable column list.
	ErrInvalidSchema = errors.New("invalid column schema")
	// ErrInvalidCapacity marks a non-positive buffer capacity.
	ErrInvalidCapacity = errors.New("invalid buffer capacity")
)

// SchemaMismatchError reports the offending and expected row widths.
type SchemaMismatchError struct {
	Got  int
	Want int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: row has %d values, schema has %d columns", ErrSchemaMismatch, e.Got, e.Want)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// IndexOutOfRangeError reports a rejected column index.
type IndexOutOfRangeError struct {
	Index   int
	Columns int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: index %d, schema has %d columns", ErrIndexOutOfRange, e.Index, e.Columns)
}

func (e *IndexOutOfRangeError) Unwrap() error { return ErrIndexOutOfRange }
