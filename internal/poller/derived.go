package poller

import (
	"math"

	"github.com/tetragramaton/seplos-go/internal/store"
)

// Derived is a value computed from other readings after every cycle.
type Derived struct {
	Name        string
	Title       string
	Unit        string
	DeviceClass string
	Precision   int
	inputs      []string
	compute     func(in []float64) float64
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

// DerivedValues lists every computed value. Power is positive while discharging.
var DerivedValues = []Derived{
	{
		Name:        "power",
		Title:       "Power",
		Unit:        "W",
		DeviceClass: "power",
		Precision:   2,
		inputs:      []string{"current", "pack_voltage"},
		compute:     func(in []float64) float64 { return -round(in[0]*in[1], 2) },
	},
	{
		Name:        "cell_delta",
		Title:       "Cell Delta",
		Unit:        "V",
		DeviceClass: "voltage",
		Precision:   3,
		inputs:      []string{"max_cell_voltage", "min_cell_voltage"},
		compute:     func(in []float64) float64 { return round(in[0]-in[1], 3) },
	},
}

// Value computes d from a snapshot. ok is false when an input is missing or stale.
func (d Derived) Value(s store.Snapshot) (float64, bool) {
	in := make([]float64, len(d.inputs))
	for i, name := range d.inputs {
		v, ok := s.Physical(name)
		if !ok {
			return 0, false
		}
		in[i] = v
	}
	return d.compute(in), true
}
