package notify

import (
	"context"
	"time"

	"github.com/calladmin/calladmin-client/internal/models"
)

// EventKind names the engine notification an Event was built from.
type EventKind string

const (
	EventNewCall           EventKind = "new_call"
	EventCallHandled       EventKind = "call_handled"
	EventError             EventKind = "error"
	EventReconnectRequired EventKind = "reconnect_required"
	EventTrackersUpdated   EventKind = "trackers_updated"
	EventStatusChanged     EventKind = "status_changed"
)

// Event is the serialisable form of an engine notification.
type Event struct {
	ID       string            `json:"id"`
	Kind     EventKind         `json:"kind"`
	At       time.Time         `json:"at"`
	Call     *models.CallEntry `json:"call,omitempty"`
	Message  string            `json:"message,omitempty"`
	Severity models.Severity   `json:"severity,omitempty"`
	Labels   []string          `json:"labels,omitempty"`
}

// Key is the partitioning key for the event: the call id when there is one.
func (e Event) Key() string {
	if e.Call != nil {
		return e.Call.Call.CallID
	}
	return string(e.Kind)
}

// Sink delivers events to an external system.
type Sink interface {
	Name() string
	Accepts(kind EventKind) bool
	Send(ctx context.Context, ev Event) error
	Close() error
}

func kindSet(kinds ...EventKind) map[EventKind]bool {
	set := make(map[EventKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
