package sim

import (
	"math/rand"

	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/register"
)

// seplosDefaults is a healthy 16s LiFePO4 pack resting at 78 % with a light discharge.
var seplosDefaults = map[string]float64{
	"pack_voltage":             53.12,
	"current":                  -4.2,
	"remaining_capacity":       218.4,
	"total_capacity":           280,
	"total_discharge_capacity": 12840,
	"soc":                      78,
	"soh":                      100,
	"cycles":                   46,
	"average_cell_voltage":     3.32,
	"average_cell_temp":        21.3,
	"max_cell_voltage":         3.324,
	"min_cell_voltage":         3.316,
	"max_cell_temp":            21.9,
	"min_cell_temp":            20.8,
	"maxdiscurt":               200,
	"maxchgcurt":               140,

	"battery_low_voltage_alarm":         46.4,
	"battery_low_voltage_recovery":      48,
	"battery_high_voltage_alarm":        56.8,
	"battery_high_voltage_recovery":     55.2,
	"cell_high_voltage_alarm":           3.55,
	"cell_low_voltage_alarm":            2.9,
	"charge_high_temperature_alarm":     50,
	"discharge_high_temperature_alarm":  55,
	"rated_battery_capacity":            280,
	"charging_request_voltage":          56.8,
	"charging_request_current":          140,
	"discharge_request_current":         -200,
	"discharge_over_current_alarm":      -210,
	"discharge_over_current_protection": -220,
}

// NewSeplos returns a simulated Seplos BMS with every descriptor of m set to a plausible value.
// With jitter, cell voltages and current wander slightly on every read.
func NewSeplos(slave byte, m *register.Map, log logrus.FieldLogger, jitter bool) *Device {
	d := New(slave, log)
	for _, desc := range m.Descriptors() {
		v, ok := seplosDefaults[desc.Name]
		switch {
		case ok:
		case desc.Group == register.GroupCells && desc.Unit == "V":
			v = 3.316 + 0.001*float64(desc.Address%9)
		case desc.Group == register.GroupCells:
			v = 20.5 + 0.2*float64(desc.Address%4)
		case desc.Writable():
			v = desc.Range.Min + (desc.Range.Max-desc.Range.Min)/2
		}
		raw, err := desc.ToRaw(v)
		if err != nil {
			log.WithError(err).Warnf("sim: no default for %s", desc.Name)
			continue
		}
		for i, w := range desc.Registers(raw) {
			d.regs[desc.Address+uint16(i)] = w
		}
	}

	if jitter {
		var wander []register.Descriptor
		for _, desc := range m.Descriptors() {
			if (desc.Group == register.GroupCells && desc.Unit == "V") || desc.Name == "current" {
				wander = append(wander, desc)
			}
		}
		d.onRead = func(regs map[uint16]uint16) {
			for _, desc := range wander {
				regs[desc.Address] = uint16(int16(regs[desc.Address]) + int16(rand.Intn(3)-1))
			}
		}
	}
	return d
}
