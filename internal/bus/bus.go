// Package bus serializes every exchange on the half-duplex serial line.
//
// One worker goroutine owns the Modbus client. Callers queue jobs with Do and block until their
// job has run. Jobs run one at a time in arrival order, so a poll cycle and a write-and-confirm
// never interleave.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	modbusIface "github.com/tetragramaton/seplos-go/internal/interface/modbus"
	"github.com/tetragramaton/seplos-go/internal/metrics"
)

var ErrStopped = errors.New("bus scheduler stopped")

// Job runs with exclusive use of the client.
type Job = func(ctx context.Context, c modbusIface.Client) error

const (
	stateQueued int32 = iota
	stateStarted
	stateAbandoned
)

type request struct {
	ctx   context.Context
	name  string
	job   Job
	state atomic.Int32
	done  chan error
}

type Scheduler struct {
	client  modbusIface.Client
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	reqCh   chan *request
	stopped chan struct{}
	running atomic.Bool
	once    sync.Once
	depth   atomic.Int64
}

func New(client modbusIface.Client, log logrus.FieldLogger, m *metrics.Metrics, queue int) *Scheduler {
	if queue < 1 {
		queue = 16
	}
	return &Scheduler{
		client:  client,
		log:     log.WithField("component", "bus"),
		metrics: m,
		reqCh:   make(chan *request, queue),
		stopped: make(chan struct{}),
	}
}

// Run executes queued jobs until ctx is done. Jobs still queued then fail with ErrStopped.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("scheduler already running")
		return
	}
	defer s.once.Do(func() { close(s.stopped) })

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler stopped")
			return
		case r := <-s.reqCh:
			s.metrics.SetQueueDepth(int(s.depth.Add(-1)))
			s.execute(r)
		}
	}
}

func (s *Scheduler) execute(r *request) {
	if !r.state.CompareAndSwap(stateQueued, stateStarted) {
		s.log.WithField("job", r.name).Debug("dropped abandoned job")
		return
	}
	if err := r.ctx.Err(); err != nil {
		r.done <- err
		return
	}
	r.done <- s.safeRun(r)
}

func (s *Scheduler) safeRun(r *request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.WithField("job", r.name).Errorf("job panicked: %v", p)
			err = errors.New("bus job panicked")
		}
	}()
	return r.job(r.ctx, s.client)
}

// Do queues job and waits for it. A job cancelled before it starts is dropped and Do returns
// the context error. Once started, a job always runs to completion and Do returns its result.
func (s *Scheduler) Do(ctx context.Context, name string, job Job) error {
	r := &request{ctx: ctx, name: name, job: job, done: make(chan error, 1)}

	select {
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case s.reqCh <- r:
		s.metrics.SetQueueDepth(int(s.depth.Add(1)))
	}

	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		if r.state.CompareAndSwap(stateQueued, stateAbandoned) {
			return ctx.Err()
		}
		return <-r.done
	case <-s.stopped:
		if r.state.CompareAndSwap(stateQueued, stateAbandoned) {
			return ErrStopped
		}
		return <-r.done
	}
}

// Pending is the number of jobs waiting for the bus.
func (s *Scheduler) Pending() int {
	return int(s.depth.Load())
}
