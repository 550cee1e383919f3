// Package bms is the consumer-facing API of the BMS core: snapshots, confirmed writes and
// per-cycle telemetry events.
package bms

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/bus"
	"github.com/tetragramaton/seplos-go/internal/poller"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
	"github.com/tetragramaton/seplos-go/internal/write"
)

type Service struct {
	regs   *register.Map
	store  *store.Store
	sched  *bus.Scheduler
	poller *poller.Poller
	writer *write.Coordinator
	log    logrus.FieldLogger

	startOnce sync.Once
}

func New(regs *register.Map, st *store.Store, sched *bus.Scheduler, p *poller.Poller, w *write.Coordinator, log logrus.FieldLogger) *Service {
	return &Service{
		regs:   regs,
		store:  st,
		sched:  sched,
		poller: p,
		writer: w,
		log:    log.WithField("component", "bms"),
	}
}

// Start runs the bus scheduler until ctx is done. Refresh and RequestWrite need a started
// service. Only the first call has an effect.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.sched.Run(ctx)
	})
}

// Run starts the scheduler and polls until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	s.log.Info("polling started")
	return s.poller.Run(ctx)
}

// Refresh runs one poll cycle now.
func (s *Service) Refresh(ctx context.Context) poller.Event {
	return s.poller.PollOnce(ctx)
}

func (s *Service) Map() *register.Map { return s.regs }

func (s *Service) Lookup(name string) (register.Descriptor, error) { return s.regs.Lookup(name) }

func (s *Service) GetSnapshot() store.Snapshot { return s.store.Snapshot() }

// RequestWrite blocks until the write is confirmed, mismatched, failed or rejected.
// Callers ask the user for confirmation before calling it.
func (s *Service) RequestWrite(ctx context.Context, name string, value float64, opts ...write.Option) write.Result {
	return s.writer.Write(ctx, newRequest(name, value, opts))
}

func newRequest(name string, value float64, opts []write.Option) write.Request {
	req := write.Request{Name: name, Value: value}
	for _, o := range opts {
		o(&req)
	}
	return req
}

// Check reports whether RequestWrite would accept the value, without any device I/O.
func (s *Service) Check(name string, value float64, opts ...write.Option) error {
	return s.writer.Check(newRequest(name, value, opts))
}

// Subscribe delivers one event per poll cycle until cancel is called.
func (s *Service) Subscribe(buffer int) (<-chan poller.Event, func()) {
	return s.poller.Subscribe(buffer)
}
