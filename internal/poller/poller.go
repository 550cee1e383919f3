// Package poller reads the full register plan on a fixed interval and keeps the store current.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/fault"
	modbusIface "github.com/tetragramaton/seplos-go/internal/interface/modbus"
	"github.com/tetragramaton/seplos-go/internal/metrics"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
)

// Bus runs a job with exclusive use of the Modbus client.
type Bus interface {
	Do(ctx context.Context, name string, job func(ctx context.Context, c modbusIface.Client) error) error
}

type Config struct {
	Interval time.Duration
}

// Event is emitted once per cycle.
type Event struct {
	At       time.Time
	Snapshot store.Snapshot
	// Changed lists names whose value moved since they last changed, in plan order.
	Changed []string
	Stale   []string
	Retries int
	// Err joins the block failures of the cycle, nil when every block was read.
	Err error
}

type Poller struct {
	cfg     Config
	regs    *register.Map
	store   *store.Store
	bus     Bus
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func New(cfg Config, regs *register.Map, st *store.Store, bus Bus, log logrus.FieldLogger, m *metrics.Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Poller{
		cfg:     cfg,
		regs:    regs,
		store:   st,
		bus:     bus,
		log:     log.WithField("component", "poller"),
		metrics: m,
		subs:    make(map[int]chan Event),
	}
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		ev := p.PollOnce(ctx)
		if errors.Is(ev.Err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce reads every block of the plan as one bus job. A block that fails after retries marks
// only its own parameters stale.
func (p *Poller) PollOnce(ctx context.Context) Event {
	start := time.Now()
	ev := Event{At: start}

	var blockErrs []error
	err := p.bus.Do(ctx, "poll", func(ctx context.Context, c modbusIface.Client) error {
		for _, b := range p.regs.FullReadPlan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, retries, err := p.readBlock(ctx, c, b)
			ev.Retries += retries
			ev.Changed = append(ev.Changed, changed...)
			if err != nil {
				blockErrs = append(blockErrs, err)
			}
		}
		ev.Changed = append(ev.Changed, p.derive()...)
		return nil
	})
	if err != nil {
		blockErrs = append(blockErrs, err)
	}
	ev.Err = errors.Join(blockErrs...)

	ev.Snapshot = p.store.Snapshot()
	for _, name := range ev.Snapshot.Names() {
		if ev.Snapshot[name].Stale {
			ev.Stale = append(ev.Stale, name)
		}
	}

	p.metrics.ObservePoll(time.Since(start), len(ev.Stale), ev.Err == nil)
	fields := logrus.Fields{"changed": len(ev.Changed), "stale": len(ev.Stale), "retries": ev.Retries, "took": time.Since(start)}
	if ev.Err != nil {
		p.log.WithFields(fields).WithError(ev.Err).Warn("poll cycle incomplete")
	} else {
		p.log.WithFields(fields).Debug("poll cycle")
	}

	p.publish(ev)
	return ev
}

func (p *Poller) readBlock(ctx context.Context, c modbusIface.Client, b register.Block) ([]string, int, error) {
	names := make([]string, len(b.Descriptors))
	for i, d := range b.Descriptors {
		names[i] = d.Name
	}

	reply, err := c.ReadRegisters(ctx, b.Address, b.Count)
	if err != nil {
		p.store.MarkStale(names...)
		p.metrics.IncError(fault.Kind(err))
		return nil, reply.Retries, fmt.Errorf("block 0x%04x+%d: %w", b.Address, b.Count, err)
	}

	now := time.Now()
	values := make([]store.Value, 0, len(b.Descriptors))
	var decodeErrs []error
	for _, d := range b.Descriptors {
		raw, err := b.Value(d, reply.Data)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			p.store.MarkStale(d.Name)
			continue
		}
		v := store.Value{Name: d.Name, Raw: raw, Physical: d.Decode(raw), Unit: d.Unit, Timestamp: now}
		values = append(values, v)
		p.metrics.SetValue(v.Name, v.Unit, v.Physical)
	}
	return p.store.Update(values...), reply.Retries, errors.Join(decodeErrs...)
}

func (p *Poller) derive() []string {
	snap := p.store.Snapshot()
	now := time.Now()
	var changed []string
	for _, d := range DerivedValues {
		v, ok := d.Value(snap)
		if !ok {
			p.store.MarkStale(d.Name)
			continue
		}
		changed = append(changed, p.store.Update(store.Value{Name: d.Name, Physical: v, Unit: d.Unit, Timestamp: now})...)
		p.metrics.SetValue(d.Name, d.Unit, v)
	}
	return changed
}

// Subscribe returns a channel receiving every cycle's event. Events are dropped, not queued,
// while the channel buffer is full. cancel closes the channel.
func (p *Poller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.log.WithField("subscriber", id).Debug("subscriber busy, event dropped")
		}
	}
}
