package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// ErrHangup marks a tty that returns end-of-file immediately, as a USB
// serial device does after it is unplugged.
var ErrHangup = fmt.Errorf("serial device hung up: %w", io.ErrUnexpectedEOF)

// SerialPort is a raw-mode tty whose reads return after at most the
// configured timeout.
type SerialPort struct {
	path    string
	fd      int
	chunk   []byte
	pending []byte
	// vtime is the inter-byte timeout the tty was configured with. An empty
	// read that returns in well under vtime is a hangup, not a timeout.
	vtime  time.Duration
	readFn func([]byte) (int, error)
	now    func() time.Time
}

// OpenSerial opens path at baud in raw 8N1 mode and discards any input
// queued before the open.
func OpenSerial(path string, baud int, readTimeout time.Duration) (*SerialPort, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	deciseconds := vtimeDeciseconds(readTimeout)
	if err := configureTTY(fd, speed, deciseconds); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	port := &SerialPort{
		path:  path,
		fd:    fd,
		chunk: make([]byte, 256),
		vtime: time.Duration(deciseconds) * 100 * time.Millisecond,
		now:   time.Now,
	}
	port.readFn = func(b []byte) (int, error) { return unix.Read(port.fd, b) }
	return port, nil
}

// vtimeDeciseconds converts a read timeout to the tty's VTIME units.
func vtimeDeciseconds(readTimeout time.Duration) uint8 {
	deciseconds := readTimeout.Milliseconds() / 100
	return uint8(max(1, min(deciseconds, 255)))
}

func configureTTY(fd int, speed uint32, deciseconds uint8) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = deciseconds

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		return fmt.Errorf("clear nonblock: %w", err)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	return nil
}

// ReadLine returns the next complete line. It returns ErrReadTimeout when
// the line did not complete within one read timeout.
func (p *SerialPort) ReadLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(p.pending, '\n'); i >= 0 {
			line := string(p.pending[:i])
			p.pending = append(p.pending[:0], p.pending[i+1:]...)
			return strings.TrimRight(line, "\r"), nil
		}
		if len(p.pending) > maxLineBytes {
			p.pending = p.pending[:0]
			return "", ErrLineTooLong
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := p.read()
		if err != nil {
			return "", err
		}
		p.pending = append(p.pending, p.chunk[:n]...)
	}
}

func (p *SerialPort) read() (int, error) {
	for {
		start := p.now()
		n, err := p.readFn(p.chunk)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, &os.PathError{Op: "read", Path: p.path, Err: err}
		}
		if n == 0 {
			if p.now().Sub(start) < p.vtime/2 {
				return 0, &os.PathError{Op: "read", Path: p.path, Err: ErrHangup}
			}
			return 0, ErrReadTimeout
		}
		return n, nil
	}
}

// Close releases the file descriptor.
func (p *SerialPort) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

// Name returns the device path.
func (p *SerialPort) Name() string { return p.path }

// SerialOpener opens the requested device, falling back to each of
// fallbacks in order when it cannot be opened.
func SerialOpener(baud int, readTimeout time.Duration, fallbacks []string) Opener {
	return func(ctx context.Context, device string) (LineSource, error) {
		candidates := make([]string, 0, 1+len(fallbacks))
		if device != "" {
			candidates = append(candidates, device)
		}
		for _, fb := range fallbacks {
			if fb != device {
				candidates = append(candidates, fb)
			}
		}
		if len(candidates) == 0 {
			return nil, errors.New("no serial device configured")
		}
		var errs []error
		for _, path := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			port, err := OpenSerial(path, baud, readTimeout)
			if err == nil {
				return port, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}
