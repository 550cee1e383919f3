package serialport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/frame"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"go.bug.st/serial"
)

// interFrameGap ends a response of unknown length once the line has been quiet this long.
const interFrameGap = 50 * time.Millisecond

type Config struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string // "N","E","O"
	StopBits int
}

// port is the part of serial.Port the transport uses.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

type opener func(name string, mode *serial.Mode) (port, error)

func openSerial(name string, mode *serial.Mode) (port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Transport owns one serial port. The port is opened lazily and reopened after a port failure.
type Transport struct {
	mu   sync.Mutex
	cfg  Config
	open opener
	port port
	log  logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Transport {
	return &Transport{cfg: cfg, open: openSerial, log: log.WithField("port", cfg.Port)}
}

func (t *Transport) mode() (*serial.Mode, error) {
	m := &serial.Mode{BaudRate: t.cfg.BaudRate, DataBits: t.cfg.DataBits}
	switch strings.ToUpper(t.cfg.Parity) {
	case "", "N", "NONE":
		m.Parity = serial.NoParity
	case "E", "EVEN":
		m.Parity = serial.EvenParity
	case "O", "ODD":
		m.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid parity %q", t.cfg.Parity)
	}
	switch t.cfg.StopBits {
	case 0, 1:
		m.StopBits = serial.OneStopBit
	case 2:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", t.cfg.StopBits)
	}
	return m, nil
}

// Open opens the port if it is not open yet.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked()
}

func (t *Transport) openLocked() error {
	if t.port != nil {
		return nil
	}
	mode, err := t.mode()
	if err != nil {
		return err
	}
	p, err := t.open(t.cfg.Port, mode)
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) {
			t.log.WithField("code", perr.Code()).Warn("open serial port failed")
		}
		return fmt.Errorf("%w: open %s: %w", transportIface.ErrPortUnavailable, t.cfg.Port, err)
	}
	t.port = p
	t.log.Infof("serial port open, %d baud", t.cfg.BaudRate)
	return nil
}

func (t *Transport) dropLocked(cause error) error {
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			t.log.WithError(err).Debug("close after failure")
		}
		t.port = nil
	}
	return fmt.Errorf("%w: %s: %w", transportIface.ErrPortUnavailable, t.cfg.Port, cause)
}

// SendAndReceive flushes stale input, writes request and reads one response frame.
func (t *Transport) SendAndReceive(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.openLocked(); err != nil {
		return nil, err
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, t.dropLocked(err)
	}
	if _, err := t.port.Write(request); err != nil {
		return nil, t.dropLocked(err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	want := frame.ExpectedResponseLength(request)

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, fmt.Errorf("%w: %d of %d bytes after %s", transportIface.ErrTimeout, len(buf), want, timeout)
		}
		if want == 0 && len(buf) > 0 && wait > interFrameGap {
			wait = interFrameGap
		}
		if err := t.port.SetReadTimeout(wait); err != nil {
			return nil, t.dropLocked(err)
		}
		n, err := t.port.Read(chunk)
		if err != nil {
			return nil, t.dropLocked(err)
		}
		if n == 0 {
			if want == 0 && len(buf) > 0 {
				return buf, nil
			}
			continue
		}
		buf = append(buf, chunk[:n]...)

		if frame.IsException(buf) && len(buf) >= frame.ExceptionResponseLength {
			return buf[:frame.ExceptionResponseLength], nil
		}
		if want > 0 && len(buf) >= want {
			if len(buf) > want {
				t.log.Debugf("discarding %d trailing bytes", len(buf)-want)
			}
			return buf[:want], nil
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
