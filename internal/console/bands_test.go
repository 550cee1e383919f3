package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackVoltage16s(t *testing.T) {
	tests := []struct {
		v    float64
		want Band
	}{
		{45.9, Critical},
		{47, Warn},
		{53.12, Good},
		{56, Warn},
		{58.4, Critical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PackVoltage16s(tt.v), "%v", tt.v)
	}
}

func TestStateOfCharge(t *testing.T) {
	assert.Equal(t, Full, StateOfCharge(95))
	assert.Equal(t, Good, StateOfCharge(70))
	assert.Equal(t, Normal, StateOfCharge(50))
	assert.Equal(t, Warn, StateOfCharge(30))
	assert.Equal(t, Critical, StateOfCharge(10))
}

func TestCurrent(t *testing.T) {
	assert.Equal(t, Warn, Current(-4.2))
	assert.Equal(t, Good, Current(10))
	assert.Equal(t, Neutral, Current(0))
}

func TestCell(t *testing.T) {
	assert.Equal(t, Critical, Cell(2.5, 3.3, true))
	assert.Equal(t, Critical, Cell(3.65, 3.3, true))
	assert.Equal(t, Warn, Cell(2.8, 3.3, true))
	assert.Equal(t, Warn, Cell(3.55, 3.3, true))
	assert.Equal(t, Good, Cell(3.3, 0, false))
	assert.Equal(t, Good, Cell(3.320, 3.320, true))
	assert.Equal(t, Warn, Cell(3.316, 3.320, true))
	assert.Equal(t, High, Cell(3.324, 3.320, true))
}
