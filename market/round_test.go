package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorToStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    float64
		step float64
		want float64
	}{
		{"exact multiple", 0.30, 0.01, 0.30},
		{"rounds down", 0.456, 0.01, 0.45},
		{"never up", 0.999, 0.01, 0.99},
		{"integer step", 7.9, 1, 7},
		{"zero step passthrough", 0.456, 0, 0.456},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, FloorToStep(tt.v, tt.step), 1e-12)
		})
	}
}

func TestIsStepMultiple(t *testing.T) {
	t.Parallel()

	// 0.30/0.01 is not an integer in binary float math; the decimal path
	// has to classify these correctly.
	assert.True(t, IsStepMultiple(0.30, 0.01))
	assert.True(t, IsStepMultiple(0.07, 0.01))
	assert.True(t, IsStepMultiple(1.0, 0.01))
	assert.False(t, IsStepMultiple(0.015, 0.01))
	assert.False(t, IsStepMultiple(0.005, 0.01))
	assert.True(t, IsStepMultiple(0.5, 0))
}

func TestRoundToDigits(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.10255, RoundToDigits(1.102549, 5), 1e-12)
	assert.InDelta(t, 1.1025, RoundToDigits(1.102549, 4), 1e-12)
	assert.InDelta(t, 150.123, RoundToDigits(150.1234, 3), 1e-12)
	assert.InDelta(t, -2.5, RoundToDigits(-2.5, -1), 1e-12)
}

func TestPipSize(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0001, PipSize(-4), 1e-12)
	assert.InDelta(t, 0.01, PipSize(-2), 1e-12)
	assert.InDelta(t, 1.0, PipSize(0), 1e-12)
}
