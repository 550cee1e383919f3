package register

import (
	"fmt"
	"strings"

	"github.com/tetragramaton/seplos-go/internal/frame"
)

// Seplos BMSv3 register pages.
const (
	PagePIA uint16 = 0x1000 // pack information
	PagePIB uint16 = 0x1100 // cell information
	PagePRM uint16 = 0x1300 // protection parameters

	GroupPack   = "pack"
	GroupCells  = "cells"
	GroupParams = "params"

	kelvin = -273.15
)

var (
	centi = Scale{1, 100}
	milli = Scale{1, 1000}
	deci  = Scale{1, 10}
	whole = Scale{1, 1}
)

// key turns a title into a parameter name: "Battery low voltage alarm" -> "battery_low_voltage_alarm".
func key(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), "_"))
}

func decimals(s Scale, offset float64) int {
	return Descriptor{Scale: s, Offset: offset}.precisionFloor()
}

func telemetry(group string, page uint16, index uint16, title, class, unit string, s Scale, offset float64, signed bool) Descriptor {
	return Descriptor{
		Name:        key(title),
		Title:       title,
		Group:       group,
		Address:     page + index,
		Words:       1,
		Scale:       s,
		Offset:      offset,
		Unit:        unit,
		Access:      ReadOnly,
		Signed:      signed,
		Precision:   decimals(s, offset),
		DeviceClass: class,
	}
}

func param(index uint16, title, class, unit string, s Scale, offset float64, signed bool, lo, hi float64) Descriptor {
	d := telemetry(GroupParams, PagePRM, index, title, class, unit, s, offset, signed)
	d.Access = ReadWrite
	d.Range = Range{Min: lo, Max: hi}
	return d
}

func seplosDescriptors() []Descriptor {
	pia := func(i uint16, title, class, unit string, s Scale, offset float64, signed bool) Descriptor {
		return telemetry(GroupPack, PagePIA, i, title, class, unit, s, offset, signed)
	}
	temp := func(i uint16, title string, lo, hi float64) Descriptor {
		return param(i, title, "temperature", "°C", deci, kelvin, false, lo, hi)
	}

	d := []Descriptor{
		pia(0, "Pack Voltage", "voltage", "V", centi, 0, false),
		pia(1, "Current", "current", "A", centi, 0, true),
		pia(2, "Remaining Capacity", "", "Ah", centi, 0, false),
		pia(3, "Total Capacity", "", "Ah", centi, 0, false),
		pia(4, "Total Discharge Capacity", "", "Ah", Scale{10, 1}, 0, false),
		pia(5, "SOC", "battery", "%", deci, 0, false),
		pia(6, "SOH", "", "%", deci, 0, false),
		pia(7, "Cycles", "", "cycles", whole, 0, false),
		pia(8, "Average Cell Voltage", "voltage", "V", milli, 0, false),
		pia(9, "Average Cell Temp", "temperature", "°C", deci, kelvin, false),
		pia(10, "Max Cell Voltage", "voltage", "V", milli, 0, false),
		pia(11, "Min Cell Voltage", "voltage", "V", milli, 0, false),
		pia(12, "Max Cell Temp", "temperature", "°C", deci, kelvin, false),
		pia(13, "Min Cell Temp", "temperature", "°C", deci, kelvin, false),
		pia(15, "MaxDisCurt", "current", "A", whole, 0, false),
		pia(16, "MaxChgCurt", "current", "A", whole, 0, false),
	}
	for i := uint16(1); i <= 16; i++ {
		d = append(d, telemetry(GroupCells, PagePIB, i-1, fmt.Sprintf("Cell %d", i), "voltage", "V", milli, 0, false))
	}
	for i := uint16(1); i <= 4; i++ {
		d = append(d, telemetry(GroupCells, PagePIB, 15+i, fmt.Sprintf("Cell Temp %d", i), "temperature", "°C", deci, kelvin, false))
	}

	d = append(d,
		param(0x02, "Battery high voltage recovery", "voltage", "V", centi, 0, false, 40, 60),
		param(0x03, "Battery high voltage alarm", "voltage", "V", centi, 0, false, 40, 60),
		param(0x04, "Battery over voltage recovery", "voltage", "V", centi, 0, false, 40, 60),
		param(0x05, "Battery over voltage protection", "voltage", "V", centi, 0, false, 40, 60),
		param(0x06, "Battery low voltage recovery", "voltage", "V", centi, 0, false, 40, 60),
		param(0x07, "Battery low voltage alarm", "voltage", "V", centi, 0, false, 40, 60),
		param(0x08, "Battery under voltage recovery", "voltage", "V", centi, 0, false, 40, 60),
		param(0x09, "Battery under voltage protection", "voltage", "V", centi, 0, false, 40, 60),
		param(0x0A, "Cell high voltage recovery", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x0B, "Cell high voltage alarm", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x0C, "Cell over voltage recovery", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x0D, "Cell over voltage protection", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x0E, "Cell low voltage recovery", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x0F, "Cell low voltage alarm", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x10, "Cell under voltage recovery", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x11, "Cell under voltage protection", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x12, "Cell under voltage failure", "voltage", "V", milli, 0, false, 1.5, 4),
		param(0x13, "Cell diff pressure protection", "voltage", "V", milli, 0, false, 0.01, 2),
		param(0x14, "Diff pressure protection recovery", "voltage", "V", milli, 0, false, 0.01, 2),
		param(0x15, "Charge over current recovery", "current", "A", whole, 0, false, 1, 400),
		param(0x16, "Charge over current alarm", "current", "A", whole, 0, false, 1, 400),
		param(0x17, "Charge over current protection", "current", "A", whole, 0, false, 1, 400),
		param(0x18, "Charge over current delay", "", "s", deci, 0, false, 0, 600),
		param(0x19, "Secondary charge over current protection", "current", "A", whole, 0, false, 1, 500),
		param(0x1A, "Secondary charge over current delay", "", "s", whole, 0, false, 0, 600),
		param(0x1B, "Discharge over current recovery", "current", "A", whole, 0, true, -400, -1),
		param(0x1C, "Discharge over current alarm", "current", "A", whole, 0, true, -400, -1),
		param(0x1D, "Discharge over current protection", "current", "A", whole, 0, true, -400, -1),
		param(0x1E, "Discharge over current delay", "", "s", deci, 0, false, 0, 600),
		param(0x1F, "Secondary discharge over current protection", "current", "A", whole, 0, true, -500, -1),
		param(0x20, "Secondary discharge over current delay", "", "s", whole, 0, false, 0, 600),
		param(0x23, "Over current recovery delay", "", "s", deci, 0, false, 0, 600),
		param(0x24, "Number of over current lock times", "", "", whole, 0, false, 0, 100),
		param(0x26, "Pulse current limiting current", "current", "A", whole, 0, false, 1, 500),
		param(0x2E, "Precharge over time", "", "s", deci, 0, false, 0, 60),
		temp(0x2F, "Charge high temperature recovery", -40, 120),
		temp(0x30, "Charge high temperature alarm", -40, 120),
		temp(0x31, "Charge over temperature recovery", -40, 120),
		temp(0x32, "Charge over temperature protection", -40, 120),
		temp(0x33, "Charge low temperature recovery", -40, 120),
		temp(0x34, "Charge low temperature alarm", -40, 120),
		temp(0x35, "Charge under temperature recovery", -40, 120),
		temp(0x36, "Charge under temperature protection", -40, 120),
		temp(0x37, "Discharge high temperature recovery", -40, 120),
		temp(0x38, "Discharge high temperature alarm", -40, 120),
		temp(0x39, "Discharge over temperature recovery", -40, 120),
		temp(0x3A, "Discharge over temperature protection", -40, 120),
		temp(0x3B, "Discharge low temperature recovery", -40, 120),
		temp(0x3C, "Discharge low temperature alarm", -40, 120),
		temp(0x3D, "Discharge under temperature recovery", -40, 120),
		temp(0x3E, "Discharge under temperature protection", -40, 120),
		temp(0x3F, "High ambient temperature recovery", -40, 120),
		temp(0x40, "High ambient temperature alarm", -40, 120),
		temp(0x41, "Over ambient temperature recovery", -40, 120),
		temp(0x42, "Over ambient temperature protection", -40, 120),
		temp(0x43, "Low ambient temperature recovery", -40, 120),
		temp(0x44, "Low ambient temperature alarm", -40, 120),
		temp(0x45, "Under ambient temperature recovery", -40, 120),
		temp(0x46, "Under ambient temperature protection", -40, 120),
		temp(0x47, "Power high temperature recovery", -40, 130),
		temp(0x48, "Power high temperature alarm", -40, 130),
		temp(0x49, "Power over temperature recovery", -40, 130),
		temp(0x4A, "Power over temperature protection", -40, 130),
		temp(0x4B, "Temperature regulate stop", -40, 120),
		temp(0x4C, "Temperature regulate open", -40, 120),
		temp(0x4D, "Equalization high temperature prohibition", -40, 120),
		temp(0x4E, "Equalization low temperature prohibition", -40, 120),
		param(0x4F, "Static equalization timing", "", "", whole, 0, false, 0, 1000),
		param(0x50, "Equalization open voltage", "voltage", "V", milli, 0, false, 2.5, 4),
		param(0x51, "Equalization open difference pressure", "voltage", "V", milli, 0, false, 0.001, 1),
		param(0x52, "Equalization stop difference pressure", "voltage", "V", milli, 0, false, 0.001, 1),
		param(0x53, "Power supply SOC", "battery", "%", deci, 0, false, 0, 100),
		param(0x54, "SOC low recovery", "battery", "%", deci, 0, false, 0, 100),
		param(0x55, "SOC low alarm", "battery", "%", deci, 0, false, 0, 100),
		param(0x56, "SOC protection recovery", "battery", "%", deci, 0, false, 0, 100),
		param(0x57, "SOC low protection", "battery", "%", deci, 0, false, 0, 100),
		param(0x58, "Rated battery capacity", "", "Ah", centi, 0, false, 1, 650),
		param(0x5B, "Stand-by time", "", "h", whole, 0, false, 0, 1000),
		param(0x5C, "Forced output delay", "", "s", deci, 0, false, 0, 600),
		param(0x5F, "Compensation site 1", "", "", whole, 0, false, 0, 1000),
		param(0x60, "Compensation site 1 resistance", "", "", whole, 0, false, 0, 1000),
		param(0x61, "Compensation site 2", "", "", whole, 0, false, 0, 1000),
		param(0x62, "Compensation site 2 resistance", "", "", whole, 0, false, 0, 1000),
		param(0x63, "Cell diff pressure alarm", "", "", whole, 0, false, 0, 1000),
		param(0x64, "Diff pressure alarm recovery", "", "", whole, 0, false, 0, 1000),
		param(0x65, "Charging request voltage", "voltage", "V", centi, 0, false, 40, 60),
		param(0x66, "Charging request current", "current", "A", whole, 0, false, 0, 400),
		param(0x67, "Discharge request current", "current", "A", whole, 0, true, -400, 0),
	)
	return d
}

// SeplosConfig reads with function 0x04 and writes single registers with 0x10, as the BMS expects.
// Holes inside a page are read rather than split into extra requests.
var SeplosConfig = Config{
	ReadFunction:  frame.FuncReadInputRegisters,
	WriteFunction: frame.FuncWriteMultipleRegisters,
	MaxGap:        8,
}

// Seplos returns the Seplos BMSv3 register map.
func Seplos() (*Map, error) {
	return NewMap(SeplosConfig, seplosDescriptors()...)
}
