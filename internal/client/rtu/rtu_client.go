package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/sirupsen/logrus"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"github.com/tetragramaton/seplos-go/internal/logging"
)

type Config struct {
	Port      string
	Baud      int
	DataBits  int
	Parity    string // "N","E","O"
	StopBits  int
	SlaveID   int
	TimeoutMs int
}

// sender is the byte-level half of goburrow's RTUClientHandler.
type sender interface {
	Connect() error
	Send(aduRequest []byte) ([]byte, error)
	Close() error
}

// handler runs raw frames through a goburrow RTU handler. Framing and checksums stay with the caller,
// the handler only provides the port, inter-frame delay and response length detection.
type handler struct {
	mu      sync.Mutex
	rh      sender
	timeout time.Duration

	// setTimeout changes the read timeout goburrow uses when it next opens the port.
	setTimeout func(time.Duration)
	log        logrus.FieldLogger
}

func NewHandler(cfg Config, log logrus.FieldLogger) transportIface.Transport {
	rh := modbus.NewRTUClientHandler(cfg.Port)
	rh.BaudRate = cfg.Baud
	rh.DataBits = cfg.DataBits
	rh.Parity = cfg.Parity
	rh.StopBits = cfg.StopBits
	rh.SlaveId = byte(cfg.SlaveID)
	rh.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	rh.IdleTimeout = time.Minute
	rh.Logger = logging.StdLogger(log, "rtu")

	return &handler{
		rh:         rh,
		timeout:    rh.Timeout,
		setTimeout: func(d time.Duration) { rh.Timeout = d },
		log:        log.WithField("port", cfg.Port),
	}
}

// SendAndReceive applies a non-zero timeout to the port. goburrow reads the timeout only on open,
// so a changed value closes the port and the next Connect reopens it.
func (h *handler) SendAndReceive(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout > 0 && timeout != h.timeout {
		h.log.Debugf("frame timeout %s -> %s, reopening port", h.timeout, timeout)
		if err := h.rh.Close(); err != nil {
			h.log.WithError(err).Debug("close before timeout change")
		}
		h.setTimeout(timeout)
		h.timeout = timeout
	}
	if err := h.rh.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", transportIface.ErrPortUnavailable, err)
	}

	resp, err := h.rh.Send(request)
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, serial.ErrTimeout), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return nil, fmt.Errorf("%w: %w", transportIface.ErrTimeout, err)
	default:
		if cerr := h.rh.Close(); cerr != nil {
			h.log.WithError(cerr).Debug("close after failure")
		}
		return nil, fmt.Errorf("%w: %w", transportIface.ErrPortUnavailable, err)
	}
}

func (h *handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rh.Close()
}
