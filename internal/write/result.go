package write

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Outcome int

const (
	// Failed means the write was not applied or its effect is unknown; Err says which.
	Failed Outcome = iota
	// Rejected means validation refused the request and no bytes were sent.
	Rejected
	// Confirmed means the read-back raw value equals the requested one.
	Confirmed
	// Mismatch means the device holds a different value than requested after the write.
	Mismatch
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Confirmed:
		return "confirmed"
	case Mismatch:
		return "mismatch"
	default:
		return "failed"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// State is a step of the write state machine, used in logs.
type State string

const (
	StateValidating           State = "validating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

type Result struct {
	ID           string
	Name         string
	Unit         string
	Outcome      Outcome
	Requested    float64
	RequestedRaw int64
	ReadBack     float64
	ReadBackRaw  int64
	Previous     float64
	HasPrevious  bool
	Forced       bool
	// Sent reports whether any write frame went out.
	Sent    bool
	Retries int
	Err     error
	At      time.Time
}

// OK is true only for a confirmed write.
func (r Result) OK() bool { return r.Outcome == Confirmed }

func num(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}

// String renders the result for people. Only a confirmed write reads as success.
func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(": ")
	switch r.Outcome {
	case Confirmed:
		if r.HasPrevious {
			fmt.Fprintf(&b, "%s -> ", num(r.Previous, r.Unit))
		}
		fmt.Fprintf(&b, "%s confirmed by read-back (raw %d)", num(r.ReadBack, r.Unit), r.ReadBackRaw)
	case Mismatch:
		fmt.Fprintf(&b, "MISMATCH: requested %s (raw %d), device reports %s (raw %d)",
			num(r.Requested, r.Unit), r.RequestedRaw, num(r.ReadBack, r.Unit), r.ReadBackRaw)
	case Rejected:
		fmt.Fprintf(&b, "write of %s rejected, nothing sent: %v", num(r.Requested, r.Unit), r.Err)
	default:
		if r.Sent {
			fmt.Fprintf(&b, "write of %s NOT CONFIRMED, device state unknown: %v", num(r.Requested, r.Unit), r.Err)
		} else {
			fmt.Fprintf(&b, "write of %s FAILED: %v", num(r.Requested, r.Unit), r.Err)
		}
	}
	return b.String()
}
