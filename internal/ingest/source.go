package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrReadTimeout is returned by ReadLine when no complete line arrived
	// within the source's read timeout. It is not a fault.
	ErrReadTimeout = errors.New("read timeout")
	// ErrLineTooLong is returned when a record exceeds maxLineBytes without a newline.
	ErrLineTooLong = errors.New("line too long")
)

const maxLineBytes = 4096

// LineSource yields newline-delimited records. ReadLine returns the line
// without its terminator; io.EOF means the source is drained.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
	Name() string
}

// Opener opens a LineSource for device. Sources that are not device-backed
// ignore the argument.
type Opener func(ctx context.Context, device string) (LineSource, error)

// ReaderSource reads lines from any io.Reader, optionally pacing them.
type ReaderSource struct {
	name     string
	reader   *bufio.Reader
	closer   io.Closer
	interval time.Duration
	last     time.Time
}

// NewReaderSource wraps r. If r is an io.Closer, Close closes it.
func NewReaderSource(name string, r io.Reader, interval time.Duration) *ReaderSource {
	src := &ReaderSource{
		name:     name,
		reader:   bufio.NewReaderSize(r, maxLineBytes),
		interval: interval,
	}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src
}

// ReadLine returns the next line, waiting out the pacing interval first.
func (s *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	if s.interval > 0 && !s.last.IsZero() {
		if wait := time.Until(s.last.Add(s.interval)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.last = time.Now()

	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close releases the underlying reader when it is closable.
func (s *ReaderSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Name identifies the source in logs.
func (s *ReaderSource) Name() string { return s.name }

// ReplayOpener replays a recorded flight, one line per interval.
func ReplayOpener(path string, interval time.Duration) Opener {
	return func(ctx context.Context, _ string) (LineSource, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open replay file: %w", err)
		}
		return NewReaderSource("replay:"+path, file, interval), nil
	}
}

// SimulatedSource synthesizes a steady climb: column 0 counts up as flight
// time, column 1 climbs one unit per record, column 2 decays from 20, and any
// further columns stay at zero.
type SimulatedSource struct {
	width    int
	interval time.Duration
	step     int
	closed   bool
}

// NewSimulatedSource returns a generator emitting width values per line.
func NewSimulatedSource(width int, interval time.Duration) *SimulatedSource {
	return &SimulatedSource{width: width, interval: interval}
}

// ReadLine produces the next synthetic record.
func (s *SimulatedSource) ReadLine(ctx context.Context) (string, error) {
	if s.closed {
		return "", io.EOF
	}
	if s.interval > 0 && s.step > 0 {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	values := make([]string, s.width)
	for i := range values {
		var v int
		switch i {
		case 0, 1:
			v = s.step
		case 2:
			v = 20 - s.step
		}
		values[i] = strconv.Itoa(v)
	}
	s.step++
	return strings.Join(values, ","), nil
}

// Close stops the generator.
func (s *SimulatedSource) Close() error {
	s.closed = true
	return nil
}

// Name identifies the source in logs.
func (s *SimulatedSource) Name() string { return "simulator" }

// SimulatorOpener returns an Opener for a fresh SimulatedSource.
func SimulatorOpener(width int, interval time.Duration) Opener {
	return func(context.Context, string) (LineSource, error) {
		return NewSimulatedSource(width, interval), nil
	}
}
