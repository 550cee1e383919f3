// Package fault classifies errors coming out of the BMS core.
//
// Transport errors (timeout, port unavailable) and frame errors (checksum, malformed) are retried by the
// Modbus client and surface only once retries are spent. Protocol errors point at a wiring or addressing
// fault and are never retried. Validation errors are raised before any byte reaches the bus.
// Confirmation errors mean a write was sent but its effect is unknown or different from the request.
package fault

import (
	"context"
	"errors"

	"github.com/tetragramaton/seplos-go/internal/frame"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"github.com/tetragramaton/seplos-go/internal/register"
)

var (
	// ErrUnsafeChange rejects a write to zero or one that moves a value by more than the allowed ratio.
	ErrUnsafeChange = errors.New("change refused by safety guard")
	// ErrNoBaseline rejects a guarded write to a parameter that has never been read.
	ErrNoBaseline = errors.New("parameter has not been read yet")
	// ErrMismatch is a write whose read-back differs from the request.
	ErrMismatch = errors.New("read-back does not match requested value")
	// ErrUnconfirmed is a write that was sent but could not be read back.
	ErrUnconfirmed = errors.New("write sent but not confirmed")
)

const (
	KindTransport    = "transport"
	KindFrame        = "frame"
	KindProtocol     = "protocol"
	KindValidation   = "validation"
	KindConfirmation = "confirmation"
	KindCanceled     = "canceled"
	KindOther        = "other"
)

func IsTransportError(err error) bool {
	return errors.Is(err, transportIface.ErrTimeout) ||
		errors.Is(err, transportIface.ErrPortUnavailable) ||
		errors.Is(err, transportIface.ErrClosed)
}

func IsFrameError(err error) bool {
	return errors.Is(err, frame.ErrChecksumMismatch) || errors.Is(err, frame.ErrMalformedFrame)
}

func IsProtocolError(err error) bool {
	var exc *frame.ExceptionError
	return errors.Is(err, frame.ErrUnexpectedDeviceAddress) ||
		errors.Is(err, frame.ErrEchoMismatch) ||
		errors.As(err, &exc)
}

func IsValidationError(err error) bool {
	return errors.Is(err, register.ErrUnknownParameter) ||
		errors.Is(err, register.ErrOutOfRange) ||
		errors.Is(err, register.ErrNotWritable) ||
		errors.Is(err, ErrUnsafeChange) ||
		errors.Is(err, ErrNoBaseline)
}

func IsConfirmationError(err error) bool {
	return errors.Is(err, ErrMismatch) || errors.Is(err, ErrUnconfirmed)
}

// Retryable reports whether a fresh frame may succeed where this one failed.
func Retryable(err error) bool {
	return errors.Is(err, transportIface.ErrTimeout) || IsFrameError(err)
}

// Kind names the error class, for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfirmationError(err):
		return KindConfirmation
	case IsValidationError(err):
		return KindValidation
	case IsProtocolError(err):
		return KindProtocol
	case IsFrameError(err):
		return KindFrame
	case IsTransportError(err):
		return KindTransport
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
