package modbus

import "context"

// Reply carries the register bytes of a read (nil for writes) and the retries it took.
type Reply struct {
	Data    []byte
	Retries int
}

// Client performs validated register exchanges with one bus device.
type Client interface {
	ReadRegisters(ctx context.Context, address, count uint16) (Reply, error)
	WriteRegisters(ctx context.Context, address uint16, values []uint16) (Reply, error)
}
