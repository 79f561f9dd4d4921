package engine

import "github.com/calladmin/calladmin-client/internal/models"

// Outcome is the escalation decision for a failed cycle.
type Outcome int

const (
	// OutcomeRetry means polling continues and the error is shown as retryable.
	OutcomeRetry Outcome = iota
	// OutcomeReconnectRequired means the threshold was just reached.
	OutcomeReconnectRequired
	// OutcomeHalted means the machine was already waiting for a reconnect.
	OutcomeHalted
)

// Escalation counts consecutive failed cycles. Once the threshold is reached it
// stays halted until Reset.
type Escalation struct {
	attempts  int
	threshold int
	halted    bool
}

// NewEscalation constructs a machine that halts after threshold consecutive failures.
func NewEscalation(threshold int) *Escalation {
	if threshold < 1 {
		threshold = 1
	}
	return &Escalation{threshold: threshold}
}

// Succeed clears the failure counter. It has no effect while halted.
func (e *Escalation) Succeed() {
	if e.halted {
		return
	}
	e.attempts = 0
}

// Fail records one failed cycle.
func (e *Escalation) Fail() Outcome {
	if e.halted {
		return OutcomeHalted
	}
	e.attempts++
	if e.attempts >= e.threshold {
		e.halted = true
		return OutcomeReconnectRequired
	}
	return OutcomeRetry
}

// Reset returns to Normal(0); used by an explicit reconnect or reconfigure.
func (e *Escalation) Reset() {
	e.attempts = 0
	e.halted = false
}

// SetThreshold changes the threshold and resets the machine.
func (e *Escalation) SetThreshold(threshold int) {
	if threshold < 1 {
		threshold = 1
	}
	e.threshold = threshold
	e.Reset()
}

func (e *Escalation) Halted() bool { return e.halted }

func (e *Escalation) Attempts() int { return e.attempts }

func (e *Escalation) Threshold() int { return e.threshold }

// State exports the counter for observers.
func (e *Escalation) State() models.EscalationState {
	return models.EscalationState{
		Attempts:          e.attempts,
		Threshold:         e.threshold,
		ThresholdExceeded: e.halted,
	}
}
