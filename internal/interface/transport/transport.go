package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout means no complete response arrived within the frame deadline. Retryable.
	ErrTimeout = errors.New("transport timeout")
	// ErrPortUnavailable means the serial device could not be used until it is reopened.
	ErrPortUnavailable = errors.New("serial port unavailable")
	ErrClosed          = errors.New("transport closed")
)

// Transport exchanges one raw request frame for one raw response frame on a half-duplex bus.
type Transport interface {
	SendAndReceive(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error)
	Close() error
}
