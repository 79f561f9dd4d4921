package services

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/calladmin/calladmin-client/internal/api"
	"github.com/calladmin/calladmin-client/internal/archive"
	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/registry"
	"github.com/calladmin/calladmin-client/internal/transport"
	"github.com/calladmin/calladmin-client/internal/utils"
)

// Controller is the part of the engine driven by remote commands.
type Controller interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
	MarkHandled(ctx context.Context, position int) error
	Reconnect(ctx context.Context) error
	RefreshTrackers(ctx context.Context) error
}

// HistoryRepo reads the local call journal.
type HistoryRepo interface {
	Recent(ctx context.Context, limit int) ([]archive.Entry, error)
	Count(ctx context.Context) (int, error)
}

// ControlService implements api.CallAdminServer on top of a running engine.
type ControlService struct {
	logger  *slog.Logger
	engine  Controller
	history HistoryRepo
}

var _ api.CallAdminServer = (*ControlService)(nil)

// NewControlService constructs the service. history may be nil when the journal is disabled.
func NewControlService(logger *slog.Logger, ctrl Controller, history HistoryRepo) *ControlService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlService{logger: logger, engine: ctrl, history: history}
}

// GetStatus returns the registry, escalation state and tracker labels.
func (s *ControlService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		return nil, s.toStatus("snapshot", err)
	}
	out, err := api.ToStatusStruct(snap)
	if err != nil {
		s.logger.Error("encode status failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode status")
	}
	return out, nil
}

// MarkHandled flags the call at the given registry position as handled.
func (s *ControlService) MarkHandled(ctx context.Context, req *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := s.engine.MarkHandled(ctx, int(req.GetValue())); err != nil {
		return nil, s.toStatus("mark handled", err)
	}
	return &emptypb.Empty{}, nil
}

// Reconnect restarts polling after the failure threshold halted it.
func (s *ControlService) Reconnect(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.engine.Reconnect(ctx); err != nil {
		return nil, s.toStatus("reconnect", err)
	}
	s.logger.Info("reconnect requested")
	return &emptypb.Empty{}, nil
}

// RefreshTrackers starts a trackers fetch.
func (s *ControlService) RefreshTrackers(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.engine.RefreshTrackers(ctx); err != nil {
		return nil, s.toStatus("refresh trackers", err)
	}
	return &emptypb.Empty{}, nil
}

// ListHistory returns the newest journaled calls. A zero or missing limit uses the journal default.
func (s *ControlService) ListHistory(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	if s.history == nil {
		return nil, status.Error(codes.FailedPrecondition, "call archive not configured")
	}
	limit := int(req.GetValue())
	if limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}

	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, s.toStatus("list history", err)
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, s.toStatus("count history", err)
	}
	out, err := api.ToHistoryStruct(entries, total)
	if err != nil {
		s.logger.Error("encode history failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode history")
	}
	return out, nil
}

func (s *ControlService) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, registry.ErrIndexOutOfRange):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, transport.ErrBusy):
		return status.Error(codes.Unavailable, "a trackers request is already in progress")
	case errors.Is(err, engine.ErrTrackersDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, engine.ErrStopped), errors.Is(err, transport.ErrClosed):
		return status.Error(codes.Unavailable, "client is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error(op+" failed", slog.Any("error", err), slog.String("origin", utils.OriginOp(err)))
	return status.Error(codes.Internal, op+" failed")
}
