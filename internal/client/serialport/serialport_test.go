package serialport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetragramaton/seplos-go/internal/frame"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"github.com/tetragramaton/seplos-go/internal/logging"
	"go.bug.st/serial"
)

// fakePort hands out queued chunks, one per Read; an empty queue behaves like a read timeout.
type fakePort struct {
	chunks   [][]byte
	written  [][]byte
	flushes  int
	closed   bool
	readErr  error
	writeErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.chunks) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error { p.flushes++; return nil }
func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) Close() error { p.closed = true; return nil }

func newTestTransport(p *fakePort) (*Transport, *int) {
	opens := 0
	tr := New(Config{Port: "/dev/ttyTEST", BaudRate: 19200, DataBits: 8, Parity: "N", StopBits: 1}, logging.Discard())
	tr.open = func(string, *serial.Mode) (port, error) {
		opens++
		return p, nil
	}
	return tr, &opens
}

func TestSendAndReceiveAssemblesChunks(t *testing.T) {
	req, err := frame.EncodeReadRequest(0, frame.FuncReadInputRegisters, 0x1000, 2)
	require.NoError(t, err)
	resp := frame.Frame{Slave: 0, Function: frame.FuncReadInputRegisters, Payload: []byte{4, 0x14, 0xFA, 0x00, 0x10}}.Bytes()

	p := &fakePort{chunks: [][]byte{resp[:3], resp[3:], {0xEE}}}
	tr, opens := newTestTransport(p)

	got, err := tr.SendAndReceive(context.Background(), req, time.Second)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
	assert.Equal(t, [][]byte{req}, p.written)
	assert.Equal(t, 1, p.flushes)
	assert.Equal(t, 1, *opens)
}

func TestSendAndReceiveException(t *testing.T) {
	req, _ := frame.EncodeReadRequest(0, frame.FuncReadInputRegisters, 0x1000, 18)
	exc := frame.Frame{Slave: 0, Function: 0x84, Payload: []byte{0x02}}.Bytes()
	tr, _ := newTestTransport(&fakePort{chunks: [][]byte{exc}})

	got, err := tr.SendAndReceive(context.Background(), req, time.Second)
	require.NoError(t, err)
	assert.Equal(t, exc, got)
}

func TestSendAndReceiveTimeout(t *testing.T) {
	req, _ := frame.EncodeReadRequest(0, frame.FuncReadInputRegisters, 0x1000, 2)
	tr, _ := newTestTransport(&fakePort{chunks: [][]byte{{0x00, 0x04}}})

	_, err := tr.SendAndReceive(context.Background(), req, 20*time.Millisecond)
	assert.ErrorIs(t, err, transportIface.ErrTimeout)
}

func TestPortFailureClosesAndReopens(t *testing.T) {
	req, _ := frame.EncodeReadRequest(0, frame.FuncReadInputRegisters, 0x1000, 1)
	p := &fakePort{readErr: errors.New("device unplugged")}
	tr, opens := newTestTransport(p)

	_, err := tr.SendAndReceive(context.Background(), req, time.Second)
	assert.ErrorIs(t, err, transportIface.ErrPortUnavailable)
	assert.True(t, p.closed)

	p.readErr = nil
	p.chunks = [][]byte{frame.Frame{Slave: 0, Function: 0x04, Payload: []byte{2, 0, 1}}.Bytes()}
	_, err = tr.SendAndReceive(context.Background(), req, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 2, *opens)
}

func TestOpenFailure(t *testing.T) {
	tr := New(Config{Port: "/dev/ttyMISSING", BaudRate: 19200, DataBits: 8}, logging.Discard())
	tr.open = func(string, *serial.Mode) (port, error) {
		return nil, &serial.PortError{}
	}
	err := tr.Open()
	assert.ErrorIs(t, err, transportIface.ErrPortUnavailable)
}

func TestInvalidParity(t *testing.T) {
	tr := New(Config{Port: "/dev/ttyTEST", Parity: "X"}, logging.Discard())
	assert.Error(t, tr.Open())
}

func TestCancelledContext(t *testing.T) {
	tr, opens := newTestTransport(&fakePort{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.SendAndReceive(ctx, []byte{0, 4, 0, 0, 0, 1, 0, 0}, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, *opens)
	assert.NoError(t, tr.Close())
}
