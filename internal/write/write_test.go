package write

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetragramaton/seplos-go/internal/bus"
	modbusClient "github.com/tetragramaton/seplos-go/internal/client/modbus"
	"github.com/tetragramaton/seplos-go/internal/client/sim"
	"github.com/tetragramaton/seplos-go/internal/fault"
	"github.com/tetragramaton/seplos-go/internal/frame"
	modbusIface "github.com/tetragramaton/seplos-go/internal/interface/modbus"
	mock_modbus "github.com/tetragramaton/seplos-go/internal/interface/modbus/mock"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"github.com/tetragramaton/seplos-go/internal/logging"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
)

const alarmAddr = 0x1307

type inlineBus struct{ c modbusIface.Client }

func (b inlineBus) Do(ctx context.Context, _ string, job func(context.Context, modbusIface.Client) error) error {
	return job(ctx, b.c)
}

type memJournal struct {
	mu      sync.Mutex
	results []Result
}

func (j *memJournal) Record(_ context.Context, r Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

func testMap(t *testing.T) *register.Map {
	t.Helper()
	m, err := register.NewMap(register.SeplosConfig,
		register.Descriptor{
			Name: "battery_low_voltage_alarm", Address: alarmAddr, Words: 1, Scale: register.Scale{Num: 1, Den: 10},
			Unit: "V", Access: register.ReadWrite, Range: register.Range{Min: 40, Max: 60}, Precision: 1,
		},
		register.Descriptor{
			Name: "pack_voltage", Address: 0x1000, Words: 1, Scale: register.Scale{Num: 1, Den: 100}, Unit: "V", Precision: 2,
		},
	)
	require.NoError(t, err)
	return m
}

type fixture struct {
	coord   *Coordinator
	dev     *sim.Device
	store   *store.Store
	journal *memJournal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := testMap(t)
	dev := sim.New(0, logging.Discard())
	dev.Set(alarmAddr, 460)

	cfg := modbusClient.DefaultConfig()
	cfg.ReadFunction = m.Config().ReadFunction
	cfg.WriteFunction = m.Config().WriteFunction
	client := modbusClient.NewClient(dev, cfg, logging.Discard(), nil)

	st := store.New(store.DefaultDeadband)
	st.Update(store.Value{Name: "battery_low_voltage_alarm", Raw: 460, Physical: 46, Unit: "V", Timestamp: time.Now()})

	j := &memJournal{}
	return fixture{
		coord:   New(m, st, inlineBus{client}, DefaultGuard(), j, logging.Discard(), nil),
		dev:     dev,
		store:   st,
		journal: j,
	}
}

func TestWriteConfirmed(t *testing.T) {
	f := newFixture(t)

	res := f.coord.Write(context.Background(), Request{Name: "battery_low_voltage_alarm", Value: 45.0})
	require.NoError(t, res.Err)
	assert.Equal(t, Confirmed, res.Outcome)
	assert.True(t, res.OK())
	assert.Equal(t, int64(450), res.RequestedRaw)
	assert.Equal(t, int64(450), res.ReadBackRaw)
	assert.Equal(t, 45.0, res.ReadBack)
	assert.Equal(t, 46.0, res.Previous)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "battery_low_voltage_alarm: 46 V -> 45 V confirmed by read-back (raw 450)", res.String())

	v, _ := f.dev.Get(alarmAddr)
	assert.Equal(t, uint16(450), v)
	assert.Equal(t, 2, f.dev.Frames())

	stored, _ := f.store.Get("battery_low_voltage_alarm")
	assert.Equal(t, 45.0, stored.Physical)

	require.Len(t, f.journal.results, 1)
	assert.Equal(t, res.ID, f.journal.results[0].ID)
}

func TestWriteRejectedBeforeTheBus(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		check func(t *testing.T, err error)
	}{
		{
			name:  "out of range",
			req:   Request{Name: "battery_low_voltage_alarm", Value: 70.0},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, register.ErrOutOfRange) },
		},
		{
			name:  "out of range even when forced",
			req:   Request{Name: "battery_low_voltage_alarm", Value: 39, Force: true},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, register.ErrOutOfRange) },
		},
		{
			name:  "read-only",
			req:   Request{Name: "pack_voltage", Value: 50},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, register.ErrNotWritable) },
		},
		{
			name:  "unknown",
			req:   Request{Name: "battery_low_voltage_alram", Value: 45},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, register.ErrUnknownParameter) },
		},
		{
			name:  "change too large",
			req:   Request{Name: "battery_low_voltage_alarm", Value: 58},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, fault.ErrUnsafeChange) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.coord.Write(context.Background(), tt.req)
			assert.Equal(t, Rejected, res.Outcome)
			assert.False(t, res.Sent)
			assert.True(t, fault.IsValidationError(res.Err))
			tt.check(t, res.Err)
			assert.Zero(t, f.dev.Frames())
			assert.Contains(t, res.String(), "rejected, nothing sent")
		})
	}
}

func TestForceSkipsGuard(t *testing.T) {
	f := newFixture(t)
	res := f.coord.Write(context.Background(), Request{Name: "battery_low_voltage_alarm", Value: 58, Force: true})
	assert.Equal(t, Confirmed, res.Outcome)
	assert.True(t, res.Forced)
}

func TestNoBaseline(t *testing.T) {
	f := newFixture(t)
	f.coord.store = store.New(0)
	res := f.coord.Write(context.Background(), Request{Name: "battery_low_voltage_alarm", Value: 45})
	assert.ErrorIs(t, res.Err, fault.ErrNoBaseline)
	assert.Zero(t, f.dev.Frames())
}

func TestWriteMismatch(t *testing.T) {
	tests := []struct {
		name   string
		faults sim.Faults
	}{
		{name: "device ignores the write", faults: sim.Faults{IgnoreWrites: true}},
		{name: "write lands on another register", faults: sim.Faults{RedirectWrites: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.dev.Inject(tt.faults)

			res := f.coord.Write(context.Background(), Request{Name: "battery_low_voltage_alarm", Value: 45})
			assert.Equal(t, Mismatch, res.Outcome)
			assert.False(t, res.OK())
			assert.ErrorIs(t, res.Err, fault.ErrMismatch)
			assert.Equal(t, int64(460), res.ReadBackRaw)
			assert.Equal(t, "battery_low_voltage_alarm: MISMATCH: requested 45 V (raw 450), device reports 46 V (raw 460)", res.String())
			assert.NotContains(t, res.String(), "confirmed")

			stored, _ := f.store.Get("battery_low_voltage_alarm")
			assert.Equal(t, 46.0, stored.Physical)
		})
	}
}

func TestWriteEchoMismatchFailsWithoutReadBack(t *testing.T) {
	f := newFixture(t)
	f.dev.Inject(sim.Faults{BadEcho: true})

	res := f.coord.Write(context.Background(), Request{Name: "battery_low_voltage_alarm", Value: 45})
	assert.Equal(t, Failed, res.Outcome)
	assert.True(t, res.Sent)
	assert.ErrorIs(t, res.Err, frame.ErrEchoMismatch)
	assert.Equal(t, 1, f.dev.Frames())
	assert.Contains(t, res.String(), "NOT CONFIRMED")
}

func TestReadBackFailureIsUnconfirmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock_modbus.NewMockClient(ctrl)
	client.EXPECT().WriteRegisters(gomock.Any(), uint16(alarmAddr), []uint16{450}).Return(modbusIface.Reply{}, nil)
	client.EXPECT().ReadRegisters(gomock.Any(), uint16(alarmAddr), uint16(1)).Return(modbusIface.Reply{Retries: 3}, transportIface.ErrTimeout)

	f := newFixture(t)
	f.coord.bus = inlineBus{client}

	res := f.coord.Write(context.Background(), Request{Name: "battery_low_voltage_alarm", Value: 45})
	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, fault.ErrUnconfirmed)
	assert.ErrorIs(t, res.Err, transportIface.ErrTimeout)
	assert.True(t, fault.IsConfirmationError(res.Err))
	assert.Equal(t, 3, res.Retries)
}

func TestConfirmationSurvivesCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock_modbus.NewMockClient(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	client.EXPECT().WriteRegisters(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, uint16, []uint16) (modbusIface.Reply, error) {
			cancel()
			return modbusIface.Reply{}, nil
		})
	client.EXPECT().ReadRegisters(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _, _ uint16) (modbusIface.Reply, error) {
			require.NoError(t, ctx.Err())
			return modbusIface.Reply{Data: []byte{0x01, 0xC2}}, nil
		})

	f := newFixture(t)
	f.coord.bus = inlineBus{client}

	res := f.coord.Write(ctx, Request{Name: "battery_low_voltage_alarm", Value: 45})
	assert.Equal(t, Confirmed, res.Outcome)
}

func TestCancelledBeforeStartSendsNothing(t *testing.T) {
	f := newFixture(t)
	sched := bus.New(f.coord.bus.(inlineBus).c, logging.Discard(), nil, 1)
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go sched.Run(runCtx)
	f.coord.bus = sched

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.coord.Write(ctx, Request{Name: "battery_low_voltage_alarm", Value: 45})
	assert.Equal(t, Failed, res.Outcome)
	assert.False(t, res.Sent)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, f.dev.Frames())
}

func TestGuardCheck(t *testing.T) {
	g := DefaultGuard()
	tests := []struct {
		name     string
		previous float64
		target   float64
		ok       bool
	}{
		{name: "small rise", previous: 46.4, target: 48, ok: true},
		{name: "exactly the limit", previous: 50, target: 60, ok: true},
		{name: "too large", previous: 46.4, target: 58, ok: false},
		{name: "too small", previous: 60, target: 40, ok: false},
		{name: "zero target", previous: 5, target: 0, ok: false},
		{name: "zero previous", previous: 0, target: 5, ok: false},
		{name: "negative within limit", previous: -200, target: -220, ok: true},
		{name: "negative too large", previous: -200, target: -300, ok: false},
		{name: "sign flip", previous: -5, target: 5, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.previous, true, tt.target)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, fault.ErrUnsafeChange)
			}
		})
	}

	assert.ErrorIs(t, g.Check(0, false, 1), fault.ErrNoBaseline)
	assert.NoError(t, Guard{}.Check(0, false, 0))
}

func TestCheckMatchesWriteValidation(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.coord.Check(Request{Name: "battery_low_voltage_alarm", Value: 47}))
	assert.ErrorIs(t, f.coord.Check(Request{Name: "battery_low_voltage_alarm", Value: 70}), register.ErrOutOfRange)
	assert.ErrorIs(t, f.coord.Check(Request{Name: "battery_low_voltage_alarm", Value: 58}), fault.ErrUnsafeChange)
	assert.NoError(t, f.coord.Check(Request{Name: "battery_low_voltage_alarm", Value: 58, Force: true}))

	assert.Zero(t, f.dev.Frames())
	assert.Empty(t, f.journal.results)
	v, _ := f.dev.Get(alarmAddr)
	assert.Equal(t, uint16(460), v)
}
