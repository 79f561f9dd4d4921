package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscalationReachesThreshold(t *testing.T) {
	for _, threshold := range []int{1, 2, 3, 5} {
		e := NewEscalation(threshold)
		for i := 1; i < threshold; i++ {
			assert.Equal(t, OutcomeRetry, e.Fail())
		}
		assert.False(t, e.Halted(), "threshold-1 failures keep polling alive")
		assert.Equal(t, threshold-1, e.Attempts())

		assert.Equal(t, OutcomeReconnectRequired, e.Fail())
		assert.True(t, e.Halted())
		assert.Equal(t, threshold, e.Attempts())
	}
}

func TestEscalationSuccessResets(t *testing.T) {
	e := NewEscalation(3)
	e.Fail()
	e.Fail()
	e.Succeed()

	assert.Equal(t, 0, e.Attempts())
	assert.Equal(t, OutcomeRetry, e.Fail())
	assert.Equal(t, OutcomeRetry, e.Fail())
	assert.False(t, e.Halted())
}

func TestEscalationHaltedIsTerminal(t *testing.T) {
	e := NewEscalation(1)
	assert.Equal(t, OutcomeReconnectRequired, e.Fail())

	assert.Equal(t, OutcomeHalted, e.Fail())
	e.Succeed()
	assert.True(t, e.Halted())
	assert.Equal(t, 1, e.Attempts())

	e.Reset()
	assert.False(t, e.Halted())
	assert.Zero(t, e.Attempts())
}

func TestEscalationState(t *testing.T) {
	e := NewEscalation(0)
	assert.Equal(t, 1, e.Threshold())

	e.SetThreshold(2)
	e.Fail()
	e.Fail()

	assert.Equal(t, 2, e.State().Attempts)
	assert.Equal(t, 2, e.State().Threshold)
	assert.True(t, e.State().ThresholdExceeded)
}
