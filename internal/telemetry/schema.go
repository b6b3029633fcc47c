package telemetry

import (
	"fmt"
	"strings"
)

// ColumnSchema is the ordered list of field names that defines the width and
// meaning of every row in a Buffer.
type ColumnSchema struct {
	names []string
	index map[string]int
}

// NewColumnSchema validates names and returns an immutable schema. Names are
// trimmed; empty or duplicate names are rejected.
func NewColumnSchema(names ...string) (ColumnSchema, error) {
	if len(names) == 0 {
		return ColumnSchema{}, fmt.Errorf("%w: at least one column is required", ErrInvalidSchema)
	}
	cleaned := make([]string, len(names))
	index := make(map[string]int, len(names))
	for i, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return ColumnSchema{}, fmt.Errorf("%w: column %d has an empty name", ErrInvalidSchema, i)
		}
		if prev, ok := index[trimmed]; ok {
			return ColumnSchema{}, fmt.Errorf("%w: column %q repeated at %d and %d", ErrInvalidSchema, trimmed, prev, i)
		}
		cleaned[i] = trimmed
		index[trimmed] = i
	}
	return ColumnSchema{names: cleaned, index: index}, nil
}

// MustColumnSchema is NewColumnSchema for static schemas; it panics on error.
func MustColumnSchema(names ...string) ColumnSchema {
	schema, err := NewColumnSchema(names...)
	if err != nil {
		panic(err)
	}
	return schema
}

// Len returns the number of columns.
func (s ColumnSchema) Len() int { return len(s.names) }

// Names returns a copy of the column names in order.
func (s ColumnSchema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Name returns the column name at index i.
func (s ColumnSchema) Name(i int) (string, bool) {
	if i < 0 || i >= len(s.names) {
		return "", false
	}
	return s.names[i], true
}

// Index returns the position of the named column.
func (s ColumnSchema) Index(name string) (int, bool) {
	i, ok := s.index[strings.TrimSpace(name)]
	return i, ok
}

// Equal reports whether both schemas list the same names in the same order.
func (s ColumnSchema) Equal(other ColumnSchema) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

func (s ColumnSchema) String() string {
	return strings.Join(s.names, ",")
}
