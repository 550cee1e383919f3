// Package sim is an in-process Modbus RTU slave that satisfies transport.Transport.
// It answers read and write frames from a register memory and can be told to misbehave.
package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/frame"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
)

// Faults shapes how the device misbehaves. Counters are consumed one per exchange.
type Faults struct {
	// Timeouts is the number of upcoming exchanges that get no answer.
	Timeouts int
	// CorruptCRC is the number of upcoming responses sent with a damaged checksum.
	CorruptCRC int
	// ForeignSlave answers every request as another bus address.
	ForeignSlave bool
	// IgnoreWrites acknowledges writes without storing them.
	IgnoreWrites bool
	// RedirectWrites stores writes this many registers away from the requested address.
	RedirectWrites int
	// BadEcho acknowledges writes with a different register address.
	BadEcho bool
	// Exception answers every request with this exception code when non-zero.
	Exception byte
}

// Device is a simulated slave. Registers that were never set read as zero.
type Device struct {
	mu      sync.Mutex
	slave   byte
	regs    map[uint16]uint16
	faults  Faults
	frames  int
	writes  int
	closed  bool
	latency time.Duration
	onRead  func(regs map[uint16]uint16)
	log     logrus.FieldLogger
}

var _ transportIface.Transport = (*Device)(nil)

func New(slave byte, log logrus.FieldLogger) *Device {
	return &Device{
		slave: slave,
		regs:  make(map[uint16]uint16),
		log:   log.WithField("component", "sim"),
	}
}

// Set stores a register value.
func (d *Device) Set(address, value uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[address] = value
}

func (d *Device) Get(address uint16) (uint16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.regs[address]
	return v, ok
}

// Inject replaces the fault configuration.
func (d *Device) Inject(f Faults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = f
}

// SetLatency delays every answer, within the caller's timeout.
func (d *Device) SetLatency(l time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = l
}

// OnRead registers a hook that may mutate the memory before every read is answered.
func (d *Device) OnRead(fn func(regs map[uint16]uint16)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRead = fn
}

// Frames is the number of request frames received, answered or not.
func (d *Device) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Writes is the number of write frames received.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) SendAndReceive(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, transportIface.ErrClosed
	}
	d.frames++
	resp, silent := d.answer(request)
	latency := d.latency
	d.mu.Unlock()

	d.log.WithField("request", fmt.Sprintf("% X", request)).Debug("frame")

	if silent {
		return nil, fmt.Errorf("%w: no answer from simulated slave", transportIface.ErrTimeout)
	}
	if latency > 0 {
		if timeout > 0 && latency > timeout {
			latency = timeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}
	return resp, nil
}

// answer builds the response for one request. silent means the device stays quiet.
func (d *Device) answer(req []byte) ([]byte, bool) {
	if d.faults.Timeouts > 0 {
		d.faults.Timeouts--
		return nil, true
	}
	// A real slave ignores damaged frames and frames for other addresses.
	if len(req) < 4 || frame.CRC16(req[:len(req)-2]) != binary.LittleEndian.Uint16(req[len(req)-2:]) {
		return nil, true
	}
	if req[0] != d.slave {
		return nil, true
	}

	fn := req[1]
	var out frame.Frame
	switch {
	case d.faults.Exception != 0:
		out = exception(fn, d.faults.Exception)
	case fn == frame.FuncReadHoldingRegisters || fn == frame.FuncReadInputRegisters:
		out = d.read(req)
	case fn == frame.FuncWriteSingleRegister:
		d.writes++
		out = d.writeSingle(req)
	case fn == frame.FuncWriteMultipleRegisters:
		d.writes++
		out = d.writeMultiple(req)
	default:
		out = exception(fn, 0x01)
	}

	out.Slave = d.slave
	if d.faults.ForeignSlave {
		out.Slave = d.slave + 1
	}
	b := out.Bytes()
	if d.faults.CorruptCRC > 0 {
		d.faults.CorruptCRC--
		b[len(b)-1] ^= 0xFF
	}
	return b, false
}

func exception(fn, code byte) frame.Frame {
	return frame.Frame{Function: fn | 0x80, Payload: []byte{code}}
}

func (d *Device) read(req []byte) frame.Frame {
	if len(req) != 8 {
		return exception(req[1], 0x03)
	}
	address := binary.BigEndian.Uint16(req[2:])
	count := binary.BigEndian.Uint16(req[4:])
	if count == 0 || count > frame.MaxReadCount || int(address)+int(count) > 0x10000 {
		return exception(req[1], 0x03)
	}
	if d.onRead != nil {
		d.onRead(d.regs)
	}
	payload := make([]byte, 1, 1+2*int(count))
	payload[0] = byte(2 * count)
	for i := uint16(0); i < count; i++ {
		payload = binary.BigEndian.AppendUint16(payload, d.regs[address+i])
	}
	return frame.Frame{Function: req[1], Payload: payload}
}

func (d *Device) target(address uint16) uint16 {
	return uint16(int(address) + d.faults.RedirectWrites)
}

func (d *Device) writeSingle(req []byte) frame.Frame {
	if len(req) != 8 {
		return exception(req[1], 0x03)
	}
	address := binary.BigEndian.Uint16(req[2:])
	value := binary.BigEndian.Uint16(req[4:])
	if !d.faults.IgnoreWrites {
		d.regs[d.target(address)] = value
	}
	echo := append([]byte(nil), req[2:6]...)
	if d.faults.BadEcho {
		binary.BigEndian.PutUint16(echo, address+1)
	}
	return frame.Frame{Function: req[1], Payload: echo}
}

func (d *Device) writeMultiple(req []byte) frame.Frame {
	if len(req) < 11 {
		return exception(req[1], 0x03)
	}
	address := binary.BigEndian.Uint16(req[2:])
	count := binary.BigEndian.Uint16(req[4:])
	if int(req[6]) != 2*int(count) || len(req) != 9+2*int(count) {
		return exception(req[1], 0x03)
	}
	if !d.faults.IgnoreWrites {
		for i := uint16(0); i < count; i++ {
			d.regs[d.target(address+i)] = binary.BigEndian.Uint16(req[7+2*i:])
		}
	}
	echo := append([]byte(nil), req[2:6]...)
	if d.faults.BadEcho {
		binary.BigEndian.PutUint16(echo, address+1)
	}
	return frame.Frame{Function: req[1], Payload: echo}
}
