package models

import "time"

// FetchMode selects the request shape of a fetch cycle.
type FetchMode int

const (
	// FetchModeFirstRun requests a historical snapshot after (re)start.
	FetchModeFirstRun FetchMode = iota
	// FetchModeIncremental requests only calls reported since the previous cycle.
	FetchModeIncremental
)

func (m FetchMode) String() string {
	switch m {
	case FetchModeFirstRun:
		return "first_run"
	case FetchModeIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// FetchCycle describes one request/response round trip against notice.php.
type FetchCycle struct {
	ID                     string
	Mode                   FetchMode
	RequestedAt            time.Time
	ElapsedSinceFirstFetch time.Duration
	RowsExpected           int
}

// EscalationState is the failure counter exposed to observers.
type EscalationState struct {
	Attempts          int  `json:"attempts"`
	Threshold         int  `json:"threshold"`
	ThresholdExceeded bool `json:"thresholdExceeded"`
}

// Severity grades notices raised towards the user.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
