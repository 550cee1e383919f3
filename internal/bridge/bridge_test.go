package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetragramaton/seplos-go/internal/ha"
	mqttIface "github.com/tetragramaton/seplos-go/internal/interface/mqtt"
	mock_mqtt "github.com/tetragramaton/seplos-go/internal/interface/mqtt/mock"
	"github.com/tetragramaton/seplos-go/internal/logging"
	"github.com/tetragramaton/seplos-go/internal/poller"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
)

type fakeSource struct {
	regs   *register.Map
	snap   store.Snapshot
	events chan poller.Event
}

func (f *fakeSource) Map() *register.Map           { return f.regs }
func (f *fakeSource) GetSnapshot() store.Snapshot { return f.snap }
func (f *fakeSource) Subscribe(int) (<-chan poller.Event, func()) {
	return f.events, func() {}
}

type recorder struct {
	mu   sync.Mutex
	msgs []mqttIface.Message
}

func (r *recorder) add(m mqttIface.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) topics() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.msgs))
	for _, m := range r.msgs {
		out[m.Topic] = string(m.Payload)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

var battery = ha.Battery{ID: "0", Prefix: "seplos", DiscoveryPrefix: "homeassistant"}

func setup(t *testing.T, republish int) (*Bridge, *fakeSource, *recorder) {
	t.Helper()
	regs, err := register.Seplos()
	require.NoError(t, err)

	now := time.Now()
	src := &fakeSource{
		regs: regs,
		snap: store.Snapshot{
			"pack_voltage": {Name: "pack_voltage", Physical: 53.12, Unit: "V", Timestamp: now},
			"current":      {Name: "current", Physical: -4.2, Unit: "A", Timestamp: now},
			"power":        {Name: "power", Physical: 223.1, Unit: "W", Timestamp: now},
		},
		events: make(chan poller.Event, 4),
	}

	rec := &recorder{}
	ctrl := gomock.NewController(t)
	client := mock_mqtt.NewMockClient(ctrl)
	client.EXPECT().PublishEvent(gomock.Any()).DoAndReturn(rec.add).AnyTimes()

	b := New(Config{Battery: battery, RepublishEvery: republish}, src, logging.Discard())
	b.OnConnect(client)
	return b, src, rec
}

func TestOnConnectAnnouncesReadOnlySensors(t *testing.T) {
	b, src, rec := setup(t, 0)
	got := rec.topics()

	raw, ok := got["homeassistant/sensor/seplos_bms_0/pack_voltage/config"]
	require.True(t, ok)
	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, "seplos/battery_0/pack_voltage", cfg["stat_t"])
	assert.Equal(t, "seplos_battery_0_pack_voltage", cfg["uniq_id"])

	assert.Contains(t, got, "homeassistant/sensor/seplos_bms_0/power/config")
	assert.Contains(t, got, "homeassistant/sensor/seplos_bms_0/cell_delta/config")
	for _, name := range src.regs.Names(register.ReadWrite) {
		assert.NotContains(t, got, battery.ConfigTopic(name), name)
	}

	assert.Equal(t, "online", got["seplos/battery_0/state"])
	assert.Equal(t, "53.12", got["seplos/battery_0/pack_voltage"])
	assert.Equal(t, "-4.2", got["seplos/battery_0/current"])
	assert.Len(t, b.Sensors(), len(src.regs.Names(register.ReadOnly))+len(poller.DerivedValues))
}

func TestHandlePublishesChangedOnly(t *testing.T) {
	b, src, rec := setup(t, 0)
	rec.reset()

	snap := src.snap
	snap["pack_voltage"] = store.Value{Name: "pack_voltage", Physical: 53.2, Timestamp: time.Now()}
	require.NoError(t, b.Handle(poller.Event{Snapshot: snap, Changed: []string{"pack_voltage"}}))

	assert.Equal(t, map[string]string{"seplos/battery_0/pack_voltage": "53.2"}, rec.topics())
}

func TestHandleSkipsStale(t *testing.T) {
	b, src, rec := setup(t, 0)
	rec.reset()

	snap := src.snap
	snap["current"] = store.Value{Name: "current", Physical: -4.2, Stale: true}
	require.NoError(t, b.Handle(poller.Event{Snapshot: snap, Changed: []string{"current"}, Stale: []string{"current"}}))
	assert.Zero(t, rec.len())
}

func TestRepublishEvery(t *testing.T) {
	b, src, rec := setup(t, 3)
	rec.reset()

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Handle(poller.Event{Snapshot: src.snap}))
	}
	assert.Zero(t, rec.len())

	require.NoError(t, b.Handle(poller.Event{Snapshot: src.snap}))
	assert.Equal(t, 3, rec.len())
}

func TestAvailabilityFollowsReads(t *testing.T) {
	b, src, rec := setup(t, 0)
	rec.reset()

	dead := store.Snapshot{}
	var stale []string
	for name, v := range src.snap {
		v.Stale = true
		dead[name] = v
		stale = append(stale, name)
	}
	require.NoError(t, b.Handle(poller.Event{Snapshot: dead, Stale: stale, Err: errors.New("timeout")}))
	assert.Equal(t, map[string]string{"seplos/battery_0/state": "offline"}, rec.topics())

	rec.reset()
	require.NoError(t, b.Handle(poller.Event{Snapshot: dead, Stale: stale, Err: errors.New("timeout")}))
	assert.Zero(t, rec.len())

	require.NoError(t, b.Handle(poller.Event{Snapshot: src.snap, Changed: []string{"power"}}))
	got := rec.topics()
	assert.Equal(t, "online", got["seplos/battery_0/state"])
	assert.Equal(t, "223.1", got["seplos/battery_0/power"])
}

func TestRunStopsOnCancel(t *testing.T) {
	b, src, rec := setup(t, 0)
	rec.reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// three values from the snapshot, then the changed one
	src.events <- poller.Event{Snapshot: src.snap, Changed: []string{"current"}}
	require.Eventually(t, func() bool { return rec.len() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
