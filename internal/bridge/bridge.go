// Package bridge mirrors poll cycles to an MQTT broker using Home Assistant discovery.
package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/ha"
	mqttIface "github.com/tetragramaton/seplos-go/internal/interface/mqtt"
	"github.com/tetragramaton/seplos-go/internal/poller"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
)

// Source is the part of the BMS service the bridge reads.
type Source interface {
	Map() *register.Map
	GetSnapshot() store.Snapshot
	Subscribe(buffer int) (<-chan poller.Event, func())
}

type Config struct {
	Battery ha.Battery
	// RepublishEvery sends every fresh value each n cycles, 0 never.
	RepublishEvery int
	QoS            byte
}

type Bridge struct {
	cfg Config
	src Source
	log logrus.FieldLogger

	mu     sync.Mutex
	client mqttIface.Client
	cycles int
	online bool
}

func New(cfg Config, src Source, log logrus.FieldLogger) *Bridge {
	return &Bridge{
		cfg: cfg,
		src: src,
		log: log.WithFields(logrus.Fields{"component": "bridge", "battery": cfg.Battery.ID}),
	}
}

// Sensors lists what is announced: every read-only register plus the derived values.
func (b *Bridge) Sensors() []ha.Sensor {
	var out []ha.Sensor
	for _, d := range b.src.Map().Descriptors() {
		if d.Writable() {
			continue
		}
		out = append(out, ha.Sensor{Key: d.Name, Title: d.Title, Unit: d.Unit, DeviceClass: d.DeviceClass, Precision: d.Precision})
	}
	for _, d := range poller.DerivedValues {
		out = append(out, ha.Sensor{Key: d.Name, Title: d.Title, Unit: d.Unit, DeviceClass: d.DeviceClass, Precision: d.Precision})
	}
	return out
}

// OnConnect announces the battery on c and republishes the current snapshot. It is
// registered as the client's connect hook so a broker restart gets the full state again.
func (b *Bridge) OnConnect(c mqttIface.Client) {
	b.mu.Lock()
	b.client = c
	b.mu.Unlock()

	if err := b.Announce(); err != nil {
		b.log.WithError(err).Error("discovery failed")
		return
	}
	if err := b.publishValues(b.src.GetSnapshot(), nil); err != nil {
		b.log.WithError(err).Warn("republish after connect failed")
	}
}

// Announce publishes discovery for every sensor and marks the battery online.
func (b *Bridge) Announce() error {
	var errs []error
	for _, s := range b.Sensors() {
		payload, err := b.cfg.Battery.SensorConfig(s).Marshal()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, b.publish(b.cfg.Battery.ConfigTopic(s.Key), payload))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.log.WithField("sensors", len(b.Sensors())).Info("discovery published")
	return b.setAvailability(true, true)
}

// Run mirrors events until ctx is done. Values read before the subscription are sent first.
func (b *Bridge) Run(ctx context.Context) error {
	events, cancel := b.src.Subscribe(4)
	defer cancel()

	if err := b.publishValues(b.src.GetSnapshot(), nil); err != nil {
		b.log.WithError(err).Warn("initial publish failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.Handle(ev); err != nil {
				b.log.WithError(err).Warn("publish failed")
			}
		}
	}
}

// Handle publishes one cycle: the changed values, or every fresh value on a republish cycle.
// A cycle in which nothing could be read takes the battery offline until the next good read.
func (b *Bridge) Handle(ev poller.Event) error {
	b.mu.Lock()
	b.cycles++
	full := b.cfg.RepublishEvery > 0 && b.cycles%b.cfg.RepublishEvery == 0
	b.mu.Unlock()

	dead := ev.Err != nil && len(ev.Snapshot) > 0 && len(ev.Stale) == len(ev.Snapshot)
	if dead {
		return b.setAvailability(false, false)
	}
	if err := b.setAvailability(true, false); err != nil {
		return err
	}
	if full {
		return b.publishValues(ev.Snapshot, nil)
	}
	return b.publishValues(ev.Snapshot, ev.Changed)
}

// publishValues sends names, or the whole snapshot when names is nil. Stale values are skipped.
func (b *Bridge) publishValues(snap store.Snapshot, names []string) error {
	if names == nil {
		names = snap.Names()
	}
	var errs []error
	for _, name := range names {
		v, ok := snap[name]
		if !ok || v.Stale {
			continue
		}
		errs = append(errs, b.publish(b.cfg.Battery.StateTopic(name), []byte(FormatValue(v.Physical))))
	}
	return errors.Join(errs...)
}

// setAvailability publishes only transitions unless force is set.
func (b *Bridge) setAvailability(online, force bool) error {
	b.mu.Lock()
	if !force && b.online == online {
		b.mu.Unlock()
		return nil
	}
	b.online = online
	b.mu.Unlock()

	state := ha.Offline
	if online {
		state = ha.Online
	}
	b.log.WithField("state", state).Info("availability")
	return b.publish(b.cfg.Battery.AvailabilityTopic(), []byte(state))
}

func (b *Bridge) publish(topic string, payload []byte) error {
	b.mu.Lock()
	c := b.client
	b.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.PublishEvent(mqttIface.Message{Topic: topic, Payload: payload, QoS: b.cfg.QoS, Retain: true})
}

func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
