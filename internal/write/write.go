// Package write changes one parameter on the device and proves the change by reading it back.
//
// A request moves idle -> validating -> awaiting confirmation -> confirmed, mismatch or failed.
// Invalid requests never reach the bus. Once a write frame may have gone out, the confirming
// read runs even if the caller gives up.
package write

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/fault"
	modbusIface "github.com/tetragramaton/seplos-go/internal/interface/modbus"
	"github.com/tetragramaton/seplos-go/internal/metrics"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
)

type Bus interface {
	Do(ctx context.Context, name string, job func(ctx context.Context, c modbusIface.Client) error) error
}

// Journal records every finished write attempt.
type Journal interface {
	Record(ctx context.Context, r Result) error
}

type Request struct {
	ID    string
	Name  string
	Value float64
	// Force skips the change guard. Range and access checks still apply.
	Force bool
}

type Option func(*Request)

func Force() Option { return func(r *Request) { r.Force = true } }

func WithID(id string) Option { return func(r *Request) { r.ID = id } }

// Guard refuses writes to zero and changes larger than MaxChange relative to the last reading.
type Guard struct {
	Enabled   bool
	MaxChange float64
}

func DefaultGuard() Guard { return Guard{Enabled: true, MaxChange: 0.2} }

// Check returns nil when moving from previous to target is allowed.
func (g Guard) Check(previous float64, known bool, target float64) error {
	if !g.Enabled {
		return nil
	}
	if !known {
		return fault.ErrNoBaseline
	}
	if target == 0 || previous == 0 {
		return fmt.Errorf("%w: change from %g to %g involves zero", fault.ErrUnsafeChange, previous, target)
	}
	if (target < 0) != (previous < 0) {
		return fmt.Errorf("%w: change from %g to %g flips the sign", fault.ErrUnsafeChange, previous, target)
	}
	lo, hi := math.Abs(previous), math.Abs(target)
	if lo > hi {
		lo, hi = hi, lo
	}
	if ratio := hi/lo - 1; ratio > g.MaxChange+1e-9 {
		return fmt.Errorf("%w: change from %g to %g is %.0f%%, limit %.0f%%",
			fault.ErrUnsafeChange, previous, target, ratio*100, g.MaxChange*100)
	}
	return nil
}

type Coordinator struct {
	regs    *register.Map
	store   *store.Store
	bus     Bus
	guard   Guard
	journal Journal
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func New(regs *register.Map, st *store.Store, bus Bus, guard Guard, journal Journal, log logrus.FieldLogger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		regs:    regs,
		store:   st,
		bus:     bus,
		guard:   guard,
		journal: journal,
		log:     log.WithField("component", "write"),
		metrics: m,
	}
}

// Write runs one request to completion. The returned Result always carries the outcome; Err is
// set for every outcome except Confirmed.
func (c *Coordinator) Write(ctx context.Context, req Request) Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	res := Result{ID: req.ID, Name: req.Name, Requested: req.Value, Forced: req.Force, At: time.Now()}
	log := c.log.WithFields(logrus.Fields{"id": req.ID, "param": req.Name, "value": req.Value})

	log.WithField("state", StateValidating).Debug("write requested")
	d, raw, err := c.validate(req, &res)
	if err != nil {
		res.Outcome = Rejected
		res.Err = err
		return c.finish(ctx, log, res)
	}

	err = c.bus.Do(ctx, "write "+req.Name, func(ctx context.Context, mc modbusIface.Client) error {
		// From here on a frame may reach the device, so the caller can no longer cancel.
		ctx = context.WithoutCancel(ctx)
		res.Sent = true
		reply, err := mc.WriteRegisters(ctx, d.Address, d.Registers(raw))
		res.Retries += reply.Retries
		if err != nil {
			res.Outcome = Failed
			res.Err = fmt.Errorf("write %s at 0x%04x: %w", d.Name, d.Address, err)
			return nil
		}

		log.WithField("state", StateAwaitingConfirmation).Debug("write acknowledged")
		c.confirm(ctx, mc, d, raw, &res)
		return nil
	})
	if err != nil {
		res.Outcome = Failed
		res.Err = fmt.Errorf("write %s not started: %w", req.Name, err)
	}
	return c.finish(ctx, log, res)
}

// Check runs the validation Write would run, without queueing anything on the bus. The guard
// compares against the store, so callers refresh first when they need a current baseline.
func (c *Coordinator) Check(req Request) error {
	var res Result
	_, _, err := c.validate(req, &res)
	return err
}

func (c *Coordinator) validate(req Request, res *Result) (register.Descriptor, int64, error) {
	d, err := c.regs.Lookup(req.Name)
	if err != nil {
		return d, 0, err
	}
	res.Unit = d.Unit
	raw, err := d.Encode(req.Value)
	if err != nil {
		return d, 0, err
	}
	res.RequestedRaw = raw

	// Names marked stale before their first read carry no value.
	prev, known := c.store.Get(req.Name)
	known = known && !prev.Timestamp.IsZero()
	if known {
		res.Previous, res.HasPrevious = prev.Physical, true
	}
	if !req.Force {
		if err := c.guard.Check(prev.Physical, known, d.Decode(raw)); err != nil {
			return d, 0, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return d, raw, nil
}

func (c *Coordinator) confirm(ctx context.Context, mc modbusIface.Client, d register.Descriptor, raw int64, res *Result) {
	reply, err := mc.ReadRegisters(ctx, d.Address, uint16(d.Words))
	res.Retries += reply.Retries
	if err != nil {
		res.Outcome = Failed
		res.Err = fmt.Errorf("%w: read-back of %s: %w", fault.ErrUnconfirmed, d.Name, err)
		return
	}
	got, err := d.FromBytes(reply.Data)
	if err != nil {
		res.Outcome = Failed
		res.Err = fmt.Errorf("%w: read-back of %s: %w", fault.ErrUnconfirmed, d.Name, err)
		return
	}

	res.ReadBackRaw = got
	res.ReadBack = d.Decode(got)
	c.store.Update(store.Value{Name: d.Name, Raw: got, Physical: res.ReadBack, Unit: d.Unit, Timestamp: time.Now()})

	if got != raw {
		res.Outcome = Mismatch
		res.Err = fmt.Errorf("%w: %s requested raw %d, read back raw %d", fault.ErrMismatch, d.Name, raw, got)
		return
	}
	res.Outcome = Confirmed
}

func (c *Coordinator) finish(ctx context.Context, log logrus.FieldLogger, res Result) Result {
	c.metrics.IncWrite(res.Outcome.String())
	fields := logrus.Fields{"outcome": res.Outcome, "retries": res.Retries, "forced": res.Forced}

	switch res.Outcome {
	case Confirmed:
		log.WithFields(fields).Info(res.String())
	case Rejected:
		log.WithFields(fields).Warn(res.String())
	default:
		log.WithFields(fields).WithField("kind", fault.Kind(res.Err)).Error(res.String())
	}

	if c.journal != nil {
		if err := c.journal.Record(context.WithoutCancel(ctx), res); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("write journal")
		}
	}
	return res
}
