package modbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetragramaton/seplos-go/internal/frame"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	mock_transport "github.com/tetragramaton/seplos-go/internal/interface/transport/mock"
	"github.com/tetragramaton/seplos-go/internal/logging"
	"github.com/tetragramaton/seplos-go/internal/metrics"
)

func testClient(t *testing.T, tr transportIface.Transport, m *metrics.Metrics) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReadFunction = frame.FuncReadInputRegisters
	c := NewClient(tr, cfg, logging.Discard(), m)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func readReply(slave byte, regs ...uint16) []byte {
	payload := []byte{byte(2 * len(regs))}
	for _, r := range regs {
		payload = append(payload, byte(r>>8), byte(r))
	}
	return frame.Frame{Slave: slave, Function: frame.FuncReadInputRegisters, Payload: payload}.Bytes()
}

func TestReadRegisters(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)

	req, err := frame.EncodeReadRequest(0, frame.FuncReadInputRegisters, 0x1000, 2)
	require.NoError(t, err)
	tr.EXPECT().SendAndReceive(gomock.Any(), req, 500*time.Millisecond).Return(readReply(0, 0x14FA, 0xFF38), nil)

	reply, err := testClient(t, tr, nil).ReadRegisters(context.Background(), 0x1000, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x14, 0xFA, 0xFF, 0x38}, reply.Data)
	assert.Zero(t, reply.Retries)
}

func TestReadRetriesTimeouts(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)
	m := metrics.New(prometheus.NewRegistry())

	gomock.InOrder(
		tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, transportIface.ErrTimeout),
		tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, transportIface.ErrTimeout),
		tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(readReply(0, 42), nil),
	)

	reply, err := testClient(t, tr, m).ReadRegisters(context.Background(), 0x1000, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, reply.Retries)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues(opRead)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues(opRead, metrics.StatusFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues(opRead, metrics.StatusSuccess)))
}

func TestReadGivesUpAfterMaxRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)

	corrupt := readReply(0, 42)
	corrupt[len(corrupt)-1] ^= 0xFF
	tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(corrupt, nil).Times(4)

	_, err := testClient(t, tr, nil).ReadRegisters(context.Background(), 0x1000, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, frame.ErrChecksumMismatch)
	assert.Equal(t, 3, RetriesOf(err))

	var op *OpError
	require.True(t, errors.As(err, &op))
	assert.Equal(t, uint16(0x1000), op.Address)
	assert.Equal(t, opRead, op.Op)
}

func TestProtocolErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		want  error
	}{
		{name: "foreign device", reply: readReply(7, 1), want: frame.ErrUnexpectedDeviceAddress},
		{
			name:  "exception",
			reply: frame.Frame{Slave: 0, Function: frame.FuncReadInputRegisters | 0x80, Payload: []byte{0x02}}.Bytes(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tr := mock_transport.NewMockTransport(ctrl)
			tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.reply, nil).Times(1)

			_, err := testClient(t, tr, nil).ReadRegisters(context.Background(), 0x1000, 1)
			require.Error(t, err)
			assert.Zero(t, RetriesOf(err))
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				var exc *frame.ExceptionError
				assert.True(t, errors.As(err, &exc))
			}
		})
	}
}

func TestPortUnavailableIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)
	tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, transportIface.ErrPortUnavailable).Times(1)

	_, err := testClient(t, tr, nil).ReadRegisters(context.Background(), 0x1000, 1)
	assert.ErrorIs(t, err, transportIface.ErrPortUnavailable)
}

func TestWriteRegister(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)

	req, err := frame.EncodeWriteMultiple(0, 0x1307, []uint16{4640})
	require.NoError(t, err)
	ack := frame.Frame{Slave: 0, Function: frame.FuncWriteMultipleRegisters, Payload: []byte{0x13, 0x07, 0x00, 0x01}}.Bytes()
	tr.EXPECT().SendAndReceive(gomock.Any(), req, gomock.Any()).Return(ack, nil)

	reply, err := testClient(t, tr, nil).WriteRegister(context.Background(), 0x1307, 4640)
	require.NoError(t, err)
	assert.Nil(t, reply.Data)
}

func TestWriteSingleFunction(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)

	req := frame.EncodeWriteSingle(0, 0x1307, 4640)
	tr.EXPECT().SendAndReceive(gomock.Any(), req, gomock.Any()).Return(req, nil)

	c := testClient(t, tr, nil)
	c.cfg.WriteFunction = frame.FuncWriteSingleRegister
	_, err := c.WriteRegister(context.Background(), 0x1307, 4640)
	assert.NoError(t, err)
}

func TestWriteEchoMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)

	ack := frame.Frame{Slave: 0, Function: frame.FuncWriteMultipleRegisters, Payload: []byte{0x13, 0x08, 0x00, 0x01}}.Bytes()
	tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).Return(ack, nil).Times(1)

	_, err := testClient(t, tr, nil).WriteRegister(context.Background(), 0x1307, 4640)
	assert.ErrorIs(t, err, frame.ErrEchoMismatch)
}

func TestCanceledDuringBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mock_transport.NewMockTransport(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	tr.EXPECT().SendAndReceive(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, []byte, time.Duration) ([]byte, error) {
			cancel()
			return nil, transportIface.ErrTimeout
		}).Times(1)

	_, err := testClient(t, tr, nil).ReadRegisters(ctx, 0x1000, 1)
	assert.ErrorIs(t, err, transportIface.ErrTimeout)
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 200*time.Millisecond, b.next(100*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, b.next(200*time.Millisecond))
}
