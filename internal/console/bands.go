package console

import "github.com/charmbracelet/lipgloss"

// Band classifies a reading for colouring.
type Band int

const (
	Neutral Band = iota
	Good
	// Warn is outside the comfortable range but not yet at a protection limit.
	Warn
	Critical
	// High marks a cell above the pack average.
	High
	Full
	Normal
)

var bandStyles = map[Band]lipgloss.Style{
	Neutral:  lipgloss.NewStyle(),
	Good:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	Warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	Critical: lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	High:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	Full:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	Normal:   lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
}

func (b Band) Style() lipgloss.Style { return bandStyles[b] }

// PackVoltage16s bands a 16 cell LiFePO4 pack voltage.
func PackVoltage16s(v float64) Band {
	switch {
	case v < 46:
		return Critical
	case v < 48:
		return Warn
	case v < 55:
		return Good
	case v < 58:
		return Warn
	default:
		return Critical
	}
}

// Current is green while charging and red while discharging.
func Current(v float64) Band {
	switch {
	case v < 0:
		return Warn
	case v > 0:
		return Good
	default:
		return Neutral
	}
}

func StateOfCharge(v float64) Band {
	switch {
	case v > 80:
		return Full
	case v > 60:
		return Good
	case v > 40:
		return Normal
	case v > 20:
		return Warn
	default:
		return Critical
	}
}

// Cell bands one LiFePO4 cell against absolute limits, then against the pack average when known.
// Cells within a millivolt of the average are Good.
func Cell(v, average float64, haveAverage bool) Band {
	switch {
	case v < 2.6 || v > 3.6:
		return Critical
	case v < 2.9 || v > 3.5:
		return Warn
	case !haveAverage:
		return Good
	}
	diff := v - average
	switch {
	case diff < -0.001:
		return Warn
	case diff > 0.001:
		return High
	default:
		return Good
	}
}
