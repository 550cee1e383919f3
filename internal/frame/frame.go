// Package frame encodes Modbus RTU requests and decodes the responses of a single bus device.
// It does no I/O and never retries.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Function codes used on the BMS bus.
const (
	FuncReadHoldingRegisters   byte = 0x03
	FuncReadInputRegisters     byte = 0x04
	FuncWriteSingleRegister    byte = 0x06
	FuncWriteMultipleRegisters byte = 0x10

	exceptionBit byte = 0x80
)

const (
	MaxReadCount  = 125
	MaxWriteCount = 123

	minFrameLen = 4
	maxFrameLen = 256
)

var (
	ErrChecksumMismatch        = errors.New("checksum mismatch")
	ErrMalformedFrame          = errors.New("malformed frame")
	ErrUnexpectedDeviceAddress = errors.New("unexpected device address")
	ErrEchoMismatch            = errors.New("write acknowledgement does not match request")
	ErrTooManyRegisters        = errors.New("too many registers")
	ErrUnsupportedFunction     = errors.New("unsupported function code")
)

// ExceptionError is a Modbus exception response sent by the device.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("device exception 0x%02x (%s) for function 0x%02x", e.Code, exceptionText(e.Code), e.Function)
}

func exceptionText(code byte) string {
	switch code {
	case 0x01:
		return "illegal function"
	case 0x02:
		return "illegal data address"
	case 0x03:
		return "illegal data value"
	case 0x04:
		return "server device failure"
	case 0x06:
		return "server device busy"
	default:
		return "unknown"
	}
}

// Frame is one decoded RTU frame without its checksum.
type Frame struct {
	Slave    byte
	Function byte
	Payload  []byte
}

// Bytes renders the frame with its checksum appended.
func (f Frame) Bytes() []byte {
	b := make([]byte, 0, len(f.Payload)+4)
	b = append(b, f.Slave, f.Function)
	b = append(b, f.Payload...)
	return appendCRC(b)
}

// EncodeReadRequest builds a read of count registers starting at address.
func EncodeReadRequest(slave, function byte, address, count uint16) ([]byte, error) {
	if function != FuncReadHoldingRegisters && function != FuncReadInputRegisters {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedFunction, function)
	}
	if count == 0 || count > MaxReadCount {
		return nil, fmt.Errorf("%w: read of %d registers", ErrTooManyRegisters, count)
	}
	if int(address)+int(count) > 0x10000 {
		return nil, fmt.Errorf("%w: read at 0x%04x+%d overflows the address space", ErrMalformedFrame, address, count)
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:], address)
	binary.BigEndian.PutUint16(payload[2:], count)
	return Frame{Slave: slave, Function: function, Payload: payload}.Bytes(), nil
}

// EncodeWriteSingle builds a function 0x06 write of one register.
func EncodeWriteSingle(slave byte, address, value uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:], address)
	binary.BigEndian.PutUint16(payload[2:], value)
	return Frame{Slave: slave, Function: FuncWriteSingleRegister, Payload: payload}.Bytes()
}

// EncodeWriteMultiple builds a function 0x10 write. Writes above MaxWriteCount registers are rejected.
func EncodeWriteMultiple(slave byte, address uint16, values []uint16) ([]byte, error) {
	if len(values) == 0 || len(values) > MaxWriteCount {
		return nil, fmt.Errorf("%w: write of %d registers", ErrTooManyRegisters, len(values))
	}
	if int(address)+len(values) > 0x10000 {
		return nil, fmt.Errorf("%w: write at 0x%04x+%d overflows the address space", ErrMalformedFrame, address, len(values))
	}
	payload := make([]byte, 5, 5+2*len(values))
	binary.BigEndian.PutUint16(payload[0:], address)
	binary.BigEndian.PutUint16(payload[2:], uint16(len(values)))
	payload[4] = byte(2 * len(values))
	for _, v := range values {
		payload = binary.BigEndian.AppendUint16(payload, v)
	}
	return Frame{Slave: slave, Function: FuncWriteMultipleRegisters, Payload: payload}.Bytes(), nil
}

// Decode validates checksum, echoed device address and function code of a response.
func Decode(raw []byte, slave, function byte) (Frame, error) {
	if len(raw) < minFrameLen || len(raw) > maxFrameLen {
		return Frame{}, fmt.Errorf("%w: length %d", ErrMalformedFrame, len(raw))
	}
	if !checkCRC(raw) {
		return Frame{}, fmt.Errorf("%w: got %02x%02x, want %04x", ErrChecksumMismatch,
			raw[len(raw)-1], raw[len(raw)-2], CRC16(raw[:len(raw)-2]))
	}
	if raw[0] != slave {
		return Frame{}, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedDeviceAddress, raw[0], slave)
	}
	f := Frame{Slave: raw[0], Function: raw[1], Payload: raw[2 : len(raw)-2]}
	if f.Function == function|exceptionBit {
		if len(f.Payload) != 1 {
			return Frame{}, fmt.Errorf("%w: exception payload of %d bytes", ErrMalformedFrame, len(f.Payload))
		}
		return Frame{}, &ExceptionError{Function: function, Code: f.Payload[0]}
	}
	if f.Function != function {
		return Frame{}, fmt.Errorf("%w: function 0x%02x, want 0x%02x", ErrMalformedFrame, f.Function, function)
	}
	return f, nil
}

// DecodeReadResponse returns the register bytes of a read response holding count registers.
func DecodeReadResponse(raw []byte, slave, function byte, count uint16) ([]byte, error) {
	f, err := Decode(raw, slave, function)
	if err != nil {
		return nil, err
	}
	if len(f.Payload) < 1 {
		return nil, fmt.Errorf("%w: missing byte count", ErrMalformedFrame)
	}
	n := int(f.Payload[0])
	if n != 2*int(count) || len(f.Payload) != 1+n {
		return nil, fmt.Errorf("%w: byte count %d with %d data bytes, want %d", ErrMalformedFrame, n, len(f.Payload)-1, 2*count)
	}
	data := make([]byte, n)
	copy(data, f.Payload[1:])
	return data, nil
}

// DecodeWriteResponse checks that the acknowledgement of request echoes its register address and
// quantity (0x10) or address and value (0x06).
func DecodeWriteResponse(raw, request []byte) error {
	if len(request) < 8 {
		return fmt.Errorf("%w: request of %d bytes", ErrMalformedFrame, len(request))
	}
	function := request[1]
	if function != FuncWriteSingleRegister && function != FuncWriteMultipleRegisters {
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedFunction, function)
	}
	f, err := Decode(raw, request[0], function)
	if err != nil {
		return err
	}
	if len(f.Payload) != 4 {
		return fmt.Errorf("%w: acknowledgement payload of %d bytes", ErrMalformedFrame, len(f.Payload))
	}
	want := request[2:6]
	for i := range want {
		if f.Payload[i] != want[i] {
			return fmt.Errorf("%w: acknowledged address 0x%04x field 0x%04x, sent 0x%04x field 0x%04x", ErrEchoMismatch,
				binary.BigEndian.Uint16(f.Payload[0:]), binary.BigEndian.Uint16(f.Payload[2:]),
				binary.BigEndian.Uint16(want[0:]), binary.BigEndian.Uint16(want[2:]))
		}
	}
	return nil
}

// ExpectedResponseLength is the size of a normal response to request, or 0 when unknown.
// An exception response is always ExceptionResponseLength bytes.
func ExpectedResponseLength(request []byte) int {
	if len(request) < 6 {
		return 0
	}
	switch request[1] {
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		return 5 + 2*int(binary.BigEndian.Uint16(request[4:]))
	case FuncWriteSingleRegister, FuncWriteMultipleRegisters:
		return 8
	}
	return 0
}

const ExceptionResponseLength = 5

// IsException reports whether a response header carries the exception bit.
func IsException(header []byte) bool {
	return len(header) >= 2 && header[1]&exceptionBit != 0
}
