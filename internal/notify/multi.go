package notify

import (
	"context"

	"github.com/calladmin/calladmin-client/internal/models"
)

// Notifier mirrors the engine's notification surface so sinks can be composed here
// without importing the engine.
type Notifier interface {
	NewCall(ctx context.Context, entry models.CallEntry)
	CallHandled(ctx context.Context, entry models.CallEntry)
	Error(ctx context.Context, message string, severity models.Severity)
	ReconnectRequired(ctx context.Context, message string)
	TrackersUpdated(ctx context.Context, labels []string)
	StatusChanged(ctx context.Context, status string)
}

// Multi fans every notification out to each notifier in order.
type Multi []Notifier

func (m Multi) NewCall(ctx context.Context, entry models.CallEntry) {
	for _, n := range m {
		n.NewCall(ctx, entry)
	}
}

func (m Multi) CallHandled(ctx context.Context, entry models.CallEntry) {
	for _, n := range m {
		n.CallHandled(ctx, entry)
	}
}

func (m Multi) Error(ctx context.Context, message string, severity models.Severity) {
	for _, n := range m {
		n.Error(ctx, message, severity)
	}
}

func (m Multi) ReconnectRequired(ctx context.Context, message string) {
	for _, n := range m {
		n.ReconnectRequired(ctx, message)
	}
}

func (m Multi) TrackersUpdated(ctx context.Context, labels []string) {
	for _, n := range m {
		n.TrackersUpdated(ctx, labels)
	}
}

func (m Multi) StatusChanged(ctx context.Context, status string) {
	for _, n := range m {
		n.StatusChanged(ctx, status)
	}
}
