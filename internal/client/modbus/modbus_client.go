package modbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/fault"
	"github.com/tetragramaton/seplos-go/internal/frame"
	modbusIface "github.com/tetragramaton/seplos-go/internal/interface/modbus"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"github.com/tetragramaton/seplos-go/internal/metrics"
)

const (
	opRead  = "read"
	opWrite = "write"
)

// Backoff grows the pause between retries from Initial by Multiplier, capped at Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (b Backoff) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * b.Multiplier)
	if b.Max > 0 && n > b.Max {
		return b.Max
	}
	return n
}

type Config struct {
	SlaveID       byte
	ReadFunction  byte
	WriteFunction byte
	Timeout       time.Duration
	MaxRetries    int
	Backoff       Backoff
}

func DefaultConfig() Config {
	return Config{
		ReadFunction:  frame.FuncReadHoldingRegisters,
		WriteFunction: frame.FuncWriteMultipleRegisters,
		Timeout:       500 * time.Millisecond,
		MaxRetries:    3,
		Backoff:       Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2},
	}
}

// OpError is a failed register operation after Retries re-sends.
type OpError struct {
	Op      string
	Address uint16
	Retries int
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s 0x%04x failed after %d retries: %v", e.Op, e.Address, e.Retries, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// RetriesOf returns the retries consumed by a failed operation, 0 if unknown.
func RetriesOf(err error) int {
	var op *OpError
	if errors.As(err, &op) {
		return op.Retries
	}
	return 0
}

// Client talks Modbus RTU to one slave over a Transport.
type Client struct {
	tr      transportIface.Transport
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient composes the frame codec with a transport it does not own; the caller closes the transport.
func NewClient(tr transportIface.Transport, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Client {
	if cfg.ReadFunction == 0 {
		cfg.ReadFunction = frame.FuncReadHoldingRegisters
	}
	if cfg.WriteFunction == 0 {
		cfg.WriteFunction = frame.FuncWriteMultipleRegisters
	}
	if cfg.Backoff.Multiplier < 1 {
		cfg.Backoff.Multiplier = 1
	}
	return &Client{
		tr:      tr,
		cfg:     cfg,
		log:     log.WithField("slave", cfg.SlaveID),
		metrics: m,
		sleep:   sleepCtx,
	}
}

var _ modbusIface.Client = (*Client)(nil)

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReadRegisters reads count registers, re-sending on timeouts and damaged frames.
func (c *Client) ReadRegisters(ctx context.Context, address, count uint16) (modbusIface.Reply, error) {
	build := func() ([]byte, error) {
		return frame.EncodeReadRequest(c.cfg.SlaveID, c.cfg.ReadFunction, address, count)
	}
	decode := func(resp, _ []byte) ([]byte, error) {
		return frame.DecodeReadResponse(resp, c.cfg.SlaveID, c.cfg.ReadFunction, count)
	}
	return c.exchange(ctx, opRead, address, build, decode)
}

// WriteRegister writes one register.
func (c *Client) WriteRegister(ctx context.Context, address, value uint16) (modbusIface.Reply, error) {
	return c.WriteRegisters(ctx, address, []uint16{value})
}

// WriteRegisters writes values from address on and checks the device acknowledgement echoes the request.
func (c *Client) WriteRegisters(ctx context.Context, address uint16, values []uint16) (modbusIface.Reply, error) {
	build := func() ([]byte, error) {
		if c.cfg.WriteFunction == frame.FuncWriteSingleRegister && len(values) == 1 {
			return frame.EncodeWriteSingle(c.cfg.SlaveID, address, values[0]), nil
		}
		return frame.EncodeWriteMultiple(c.cfg.SlaveID, address, values)
	}
	decode := func(resp, req []byte) ([]byte, error) {
		return nil, frame.DecodeWriteResponse(resp, req)
	}
	return c.exchange(ctx, opWrite, address, build, decode)
}

func (c *Client) exchange(
	ctx context.Context,
	op string,
	address uint16,
	build func() ([]byte, error),
	decode func(resp, req []byte) ([]byte, error),
) (modbusIface.Reply, error) {
	var lastErr error
	delay := c.cfg.Backoff.Initial

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetry(op)
			c.log.WithFields(logrus.Fields{"op": op, "address": fmt.Sprintf("0x%04x", address), "attempt": attempt}).
				Warnf("retrying after %v", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return modbusIface.Reply{Retries: attempt - 1}, &OpError{Op: op, Address: address, Retries: attempt - 1, Err: err}
			}
			delay = c.cfg.Backoff.next(delay)
		}

		req, err := build()
		if err != nil {
			return modbusIface.Reply{}, &OpError{Op: op, Address: address, Err: err}
		}

		resp, err := c.tr.SendAndReceive(ctx, req, c.cfg.Timeout)
		var data []byte
		if err == nil {
			data, err = decode(resp, req)
		}
		if err == nil {
			c.metrics.IncFrame(op, metrics.StatusSuccess)
			return modbusIface.Reply{Data: data, Retries: attempt}, nil
		}

		c.metrics.IncFrame(op, metrics.StatusFailed)
		c.metrics.IncError(fault.Kind(err))
		lastErr = err
		if !fault.Retryable(err) || ctx.Err() != nil {
			return modbusIface.Reply{Retries: attempt}, &OpError{Op: op, Address: address, Retries: attempt, Err: err}
		}
	}
	return modbusIface.Reply{Retries: c.cfg.MaxRetries}, &OpError{Op: op, Address: address, Retries: c.cfg.MaxRetries, Err: lastErr}
}
