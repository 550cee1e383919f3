// Package register describes the BMS register layout: where each named parameter lives, how its raw
// integer maps to a physical value and which parameters may be written.
package register

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tetragramaton/seplos-go/internal/frame"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrOutOfRange       = errors.New("value out of range")
	ErrNotWritable      = errors.New("parameter is read-only")
	ErrInvalidMap       = errors.New("invalid register map")
)

type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "ro"
}

// Scale is the physical size of one raw unit, Num/Den.
type Scale struct {
	Num int64
	Den int64
}

func (s Scale) Float() float64 { return float64(s.Num) / float64(s.Den) }

// Range is an inclusive interval in physical units.
type Range struct {
	Min float64
	Max float64
}

func (r Range) Valid() bool { return r.Max > r.Min }

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

type Descriptor struct {
	Name        string
	Title       string
	Group       string
	Address     uint16
	Words       int
	Scale       Scale
	Offset      float64
	Unit        string
	Access      Access
	Range       Range
	Signed      bool
	Precision   int // decimals kept after scaling
	DeviceClass string
}

func (d Descriptor) Writable() bool { return d.Access == ReadWrite }

// End is the first address after the descriptor.
func (d Descriptor) End() int { return int(d.Address) + d.Words }

func (d Descriptor) rawBounds() (int64, int64) {
	bits := uint(16 * d.Words)
	if d.Signed {
		return -(1 << (bits - 1)), 1<<(bits-1) - 1
	}
	return 0, 1<<bits - 1
}

// Encode validates a physical value for a write and converts it to the nearest raw unit.
func (d Descriptor) Encode(physical float64) (int64, error) {
	if !d.Writable() {
		return 0, fmt.Errorf("%w: %s", ErrNotWritable, d.Name)
	}
	if math.IsNaN(physical) || math.IsInf(physical, 0) || !d.Range.Contains(physical) {
		return 0, fmt.Errorf("%w: %s = %g %s, allowed %g..%g", ErrOutOfRange, d.Name, physical, d.Unit, d.Range.Min, d.Range.Max)
	}
	return d.ToRaw(physical)
}

// ToRaw scales without access or range checks; only the register width is enforced.
func (d Descriptor) ToRaw(physical float64) (int64, error) {
	raw := math.Round((physical - d.Offset) * float64(d.Scale.Den) / float64(d.Scale.Num))
	lo, hi := d.rawBounds()
	if raw < float64(lo) || raw > float64(hi) {
		return 0, fmt.Errorf("%w: %s = %g does not fit the register", ErrOutOfRange, d.Name, physical)
	}
	return int64(raw), nil
}

// Decode converts a raw register value to physical units, rounded to the descriptor precision.
func (d Descriptor) Decode(raw int64) float64 {
	v := float64(raw)*float64(d.Scale.Num)/float64(d.Scale.Den) + d.Offset
	p := math.Pow(10, float64(d.Precision))
	return math.Round(v*p) / p
}

// Registers splits a raw value into register words, high word first.
func (d Descriptor) Registers(raw int64) []uint16 {
	if d.Words == 2 {
		u := uint32(raw)
		return []uint16{uint16(u >> 16), uint16(u)}
	}
	return []uint16{uint16(raw)}
}

// FromBytes reads the descriptor's raw value from big-endian register bytes.
func (d Descriptor) FromBytes(b []byte) (int64, error) {
	if len(b) < 2*d.Words {
		return 0, fmt.Errorf("%s: need %d bytes, have %d", d.Name, 2*d.Words, len(b))
	}
	if d.Words == 2 {
		u := binary.BigEndian.Uint32(b)
		if d.Signed {
			return int64(int32(u)), nil
		}
		return int64(u), nil
	}
	u := binary.BigEndian.Uint16(b)
	if d.Signed {
		return int64(int16(u)), nil
	}
	return int64(u), nil
}

// precisionFloor is the number of decimals needed to tell raw units apart, offset included,
// so that Encode(Decode(raw)) == raw.
func (d Descriptor) precisionFloor() int {
	num, n := d.Scale.Num, 0
	for num < d.Scale.Den && n < 9 {
		num *= 10
		n++
	}
	for m := 0; m < 9; m++ {
		p := math.Pow(10, float64(m))
		if math.Abs(d.Offset*p-math.Round(d.Offset*p)) < 1e-6 {
			return max(n, m)
		}
	}
	return 9
}

// Block is one contiguous register read.
type Block struct {
	Address     uint16
	Count       uint16
	Descriptors []Descriptor
}

// Value extracts a covered descriptor's raw value from the block's response bytes.
func (b Block) Value(d Descriptor, data []byte) (int64, error) {
	off := 2 * (int(d.Address) - int(b.Address))
	if off < 0 || off+2*d.Words > len(data) {
		return 0, fmt.Errorf("%s at 0x%04x outside block 0x%04x+%d", d.Name, d.Address, b.Address, b.Count)
	}
	return d.FromBytes(data[off:])
}

type Config struct {
	ReadFunction  byte
	WriteFunction byte
	// MaxGap lets one read span holes of up to this many unmapped registers.
	MaxGap uint16
	// MaxBlock caps registers per read, at most frame.MaxReadCount.
	MaxBlock uint16
}

// Map is an immutable, validated set of descriptors.
type Map struct {
	cfg    Config
	descs  []Descriptor
	byName map[string]int
	plan   []Block
}

// NewMap validates descriptors and precomputes the read plan.
func NewMap(cfg Config, descs ...Descriptor) (*Map, error) {
	if cfg.ReadFunction == 0 {
		cfg.ReadFunction = frame.FuncReadHoldingRegisters
	}
	if cfg.WriteFunction == 0 {
		cfg.WriteFunction = frame.FuncWriteMultipleRegisters
	}
	if cfg.MaxBlock == 0 || cfg.MaxBlock > frame.MaxReadCount {
		cfg.MaxBlock = frame.MaxReadCount
	}

	m := &Map{cfg: cfg, byName: make(map[string]int, len(descs))}
	m.descs = append([]Descriptor(nil), descs...)
	sort.SliceStable(m.descs, func(i, j int) bool { return m.descs[i].Address < m.descs[j].Address })

	var errs []error
	for i, d := range m.descs {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("descriptor at 0x%04x has no name", d.Address))
		}
		if _, dup := m.byName[d.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate name %q", d.Name))
		}
		m.byName[d.Name] = i
		if d.Words != 1 && d.Words != 2 {
			errs = append(errs, fmt.Errorf("%s: word count %d", d.Name, d.Words))
		}
		if d.Scale.Num <= 0 || d.Scale.Den <= 0 {
			errs = append(errs, fmt.Errorf("%s: scale %d/%d", d.Name, d.Scale.Num, d.Scale.Den))
		} else if d.Precision < d.precisionFloor() {
			errs = append(errs, fmt.Errorf("%s: precision %d is coarser than one raw unit", d.Name, d.Precision))
		}
		if d.Writable() && !d.Range.Valid() {
			errs = append(errs, fmt.Errorf("%s: writable without a valid range", d.Name))
		}
		if d.End() > 0x10000 {
			errs = append(errs, fmt.Errorf("%s: runs past the address space", d.Name))
		}
		if i > 0 && int(d.Address) < m.descs[i-1].End() {
			errs = append(errs, fmt.Errorf("%s at 0x%04x overlaps %s", d.Name, d.Address, m.descs[i-1].Name))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMap, errors.Join(errs...))
	}

	m.plan = m.buildPlan()
	return m, nil
}

func (m *Map) Config() Config { return m.cfg }

// Lookup fails with ErrUnknownParameter for a name the map does not know.
func (m *Map) Lookup(name string) (Descriptor, error) {
	i, ok := m.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return m.descs[i], nil
}

// Descriptors returns all descriptors in address order.
func (m *Map) Descriptors() []Descriptor {
	return append([]Descriptor(nil), m.descs...)
}

func (m *Map) Names(access Access) []string {
	var out []string
	for _, d := range m.descs {
		if d.Access == access {
			out = append(out, d.Name)
		}
	}
	return out
}

// FullReadPlan is the ordered, minimal list of block reads that covers every descriptor.
func (m *Map) FullReadPlan() []Block {
	out := make([]Block, len(m.plan))
	copy(out, m.plan)
	return out
}

// PlanFor returns the single read covering one descriptor.
func (m *Map) PlanFor(d Descriptor) Block {
	return Block{Address: d.Address, Count: uint16(d.Words), Descriptors: []Descriptor{d}}
}

func (m *Map) buildPlan() []Block {
	var plan []Block
	for _, d := range m.descs {
		if n := len(plan); n > 0 {
			b := &plan[n-1]
			end := int(b.Address) + int(b.Count)
			if int(d.Address)-end <= int(m.cfg.MaxGap) && d.End()-int(b.Address) <= int(m.cfg.MaxBlock) {
				b.Count = uint16(d.End() - int(b.Address))
				b.Descriptors = append(b.Descriptors, d)
				continue
			}
		}
		plan = append(plan, Block{Address: d.Address, Count: uint16(d.Words), Descriptors: []Descriptor{d}})
	}
	return plan
}
