package telemetry

import (
	"fmt"
	"sync"
)

// Row is one decoded telemetry record, one value per schema column.
type Row []float64

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Entry pairs a row with its 1-based push sequence number.
type Entry struct {
	Seq uint64
	Row Row
}

// Buffer is a fixed-capacity, oldest-first ring of rows. It is safe for one
// producer and any number of concurrent readers.
type Buffer struct {
	mu     sync.RWMutex
	schema ColumnSchema
	slots  []Row
	head   int // index of the oldest retained row
	count  int
	pushed uint64
}

// NewBuffer allocates a buffer for schema holding at most capacity rows.
func NewBuffer(schema ColumnSchema, capacity int) (*Buffer, error) {
	if schema.Len() == 0 {
		return nil, fmt.Errorf("%w: schema has no columns", ErrInvalidSchema)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	width := schema.Len()
	arena := make([]float64, width*capacity)
	slots := make([]Row, capacity)
	for i := range slots {
		slots[i] = Row(arena[i*width : (i+1)*width : (i+1)*width])
	}
	return &Buffer{schema: schema, slots: slots}, nil
}

// Push appends row as the newest entry, evicting the oldest when full. A row
// whose width disagrees with the schema is rejected and the buffer is left
// untouched.
func (b *Buffer) Push(row Row) error {
	width := b.schema.Len()
	if len(row) != width {
		return &SchemaMismatchError{Got: len(row), Want: width}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.slots)
	var slot int
	if b.count < capacity {
		slot = (b.head + b.count) % capacity
		b.count++
	} else {
		slot = b.head
		b.head = (b.head + 1) % capacity
	}
	copy(b.slots[slot], row)
	b.pushed++
	return nil
}

// Latest returns a copy of the newest row. The boolean is false when the
// buffer is empty.
func (b *Buffer) Latest() (Row, bool) {
	entry, ok := b.LatestEntry()
	if !ok {
		return nil, false
	}
	return entry.Row, true
}

// LatestEntry returns the newest row together with its sequence number.
func (b *Buffer) LatestEntry() (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.count == 0 {
		return Entry{}, false
	}
	return Entry{Seq: b.pushed, Row: b.slots[b.newestLocked()].Clone()}, true
}

// Snapshot returns the values of one column across all retained rows, oldest
// first. The result always has Size() elements at the instant of the call and
// is never nil.
func (b *Buffer) Snapshot(column int) ([]float64, error) {
	if err := b.checkColumn(column); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.columnLocked(column), nil
}

// SnapshotColumn is Snapshot addressed by column name.
func (b *Buffer) SnapshotColumn(name string) ([]float64, error) {
	column, ok := b.schema.Index(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return b.Snapshot(column)
}

// SnapshotColumns copies several columns under a single read lock so the
// returned series are aligned row for row.
func (b *Buffer) SnapshotColumns(columns ...int) ([][]float64, error) {
	for _, column := range columns {
		if err := b.checkColumn(column); err != nil {
			return nil, err
		}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]float64, len(columns))
	for i, column := range columns {
		out[i] = b.columnLocked(column)
	}
	return out, nil
}

// Window is every column plus the newest row, copied under one lock.
type Window struct {
	Seq    uint64
	Series [][]float64
	Latest Row
}

// Window returns a consistent copy of the whole buffer. Latest is nil when
// the buffer is empty.
func (b *Buffer) Window() Window {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w := Window{Seq: b.pushed, Series: make([][]float64, b.schema.Len())}
	for column := range w.Series {
		w.Series[column] = b.columnLocked(column)
	}
	if b.count > 0 {
		w.Latest = b.slots[b.newestLocked()].Clone()
	}
	return w
}

// Rows returns a copy of every retained row, oldest first.
func (b *Buffer) Rows() []Row {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Row, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.slots[(b.head+i)%len(b.slots)].Clone()
	}
	return out
}

// Size returns the number of retained rows.
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns the fixed maximum number of rows.
func (b *Buffer) Capacity() int { return len(b.slots) }

// Schema returns the buffer's column schema.
func (b *Buffer) Schema() ColumnSchema { return b.schema }

// Pushed returns the number of rows accepted since construction, including
// evicted ones.
func (b *Buffer) Pushed() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pushed
}

func (b *Buffer) checkColumn(column int) error {
	if column < 0 || column >= b.schema.Len() {
		return &IndexOutOfRangeError{Index: column, Columns: b.schema.Len()}
	}
	return nil
}

func (b *Buffer) newestLocked() int {
	return (b.head + b.count - 1) % len(b.slots)
}

func (b *Buffer) columnLocked(column int) []float64 {
	out := make([]float64, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.slots[(b.head+i)%len(b.slots)][column]
	}
	return out
}
