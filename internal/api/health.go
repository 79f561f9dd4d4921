package api

import (
	"context"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/models"
)

// HealthReporter reports NOT_SERVING for the control service while polling is
// halted and SERVING again once a cycle is in progress. It is an engine
// notifier, so it has to exist before both the engine and the server.
type HealthReporter struct {
	srv *health.Server
}

// NewHealthReporter returns a reporter with every service SERVING.
func NewHealthReporter() *HealthReporter {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{srv: srv}
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus(ServiceName, status)
}

func (h *HealthReporter) ReconnectRequired(context.Context, string) {
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

func (h *HealthReporter) StatusChanged(_ context.Context, status string) {
	switch status {
	case engine.StatusReconnectRequired:
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	case engine.StatusConnecting, engine.StatusWaiting:
		h.set(healthpb.HealthCheckResponse_SERVING)
	}
}

func (h *HealthReporter) NewCall(context.Context, models.CallEntry) {}
func (h *HealthReporter) CallHandled(context.Context, models.CallEntry) {}
func (h *HealthReporter) Error(context.Context, string, models.Severity) {}
func (h *HealthReporter) TrackersUpdated(context.Context, []string) {}
