package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/calladmin/calladmin-client/internal/api"
	"github.com/calladmin/calladmin-client/internal/archive"
	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/registry"
	"github.com/calladmin/calladmin-client/internal/transport"
)

type controllerStub struct {
	snap       engine.Snapshot
	err        error
	handled    []int
	reconnects int
	refreshes  int
}

func (c *controllerStub) Snapshot(context.Context) (engine.Snapshot, error) {
	return c.snap, c.err
}

func (c *controllerStub) MarkHandled(_ context.Context, position int) error {
	if c.err != nil {
		return c.err
	}
	c.handled = append(c.handled, position)
	return nil
}

func (c *controllerStub) Reconnect(context.Context) error {
	c.reconnects++
	return c.err
}

func (c *controllerStub) RefreshTrackers(context.Context) error {
	c.refreshes++
	return c.err
}

func TestGetStatus(t *testing.T) {
	ctrl := &controllerStub{snap: engine.Snapshot{
		Status:   engine.StatusReconnectRequired,
		NextMode: models.FetchModeIncremental,
		Escalation: models.EscalationState{
			Attempts: 5, Threshold: 5, ThresholdExceeded: true,
		},
	}}
	service := NewControlService(nil, ctrl, nil)

	st, err := service.GetStatus(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := api.FromStatusStruct(st)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !view.Escalation.ThresholdExceeded || view.Status != engine.StatusReconnectRequired {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestMarkHandled(t *testing.T) {
	ctrl := &controllerStub{}
	service := NewControlService(nil, ctrl, nil)

	if _, err := service.MarkHandled(context.Background(), wrapperspb.Int32(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctrl.handled) != 1 || ctrl.handled[0] != 3 {
		t.Fatalf("expected position 3 to be handled, got %v", ctrl.handled)
	}

	if _, err := service.MarkHandled(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil request, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"out of range", fmt.Errorf("mark handled 9: %w", registry.ErrIndexOutOfRange), codes.InvalidArgument},
		{"busy", transport.ErrBusy, codes.Unavailable},
		{"no trackers", engine.ErrTrackersDisabled, codes.FailedPrecondition},
		{"stopped", engine.ErrStopped, codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := NewControlService(nil, &controllerStub{err: tc.err}, nil)
			_, err := service.RefreshTrackers(context.Background(), &emptypb.Empty{})
			if status.Code(err) != tc.code {
				t.Fatalf("expected %v, got %v", tc.code, err)
			}
		})
	}
}

func TestReconnect(t *testing.T) {
	ctrl := &controllerStub{}
	service := NewControlService(nil, ctrl, nil)
	if _, err := service.Reconnect(context.Background(), &emptypb.Empty{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.reconnects != 1 {
		t.Fatalf("expected one reconnect, got %d", ctrl.reconnects)
	}
}

func TestListHistoryWithoutArchive(t *testing.T) {
	service := NewControlService(nil, &controllerStub{}, nil)
	_, err := service.ListHistory(context.Background(), wrapperspb.Int32(5))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestListHistoryFromArchive(t *testing.T) {
	ctx := context.Background()
	a, err := archive.Open(":memory:")
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer a.Close()

	calls := []models.CallRecord{
		{CallID: "1", ServerName: "Public #1", ReportedAt: 100},
		{CallID: "2", ServerName: "Public #2", ReportedAt: 200},
		{CallID: "3", ServerName: "Public #3", ReportedAt: 300},
	}
	if err := a.RecordCalls(ctx, calls); err != nil {
		t.Fatalf("record calls: %v", err)
	}

	service := NewControlService(nil, &controllerStub{}, a)
	st, err := service.ListHistory(ctx, wrapperspb.Int32(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := api.FromHistoryStruct(st)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Total != 3 || len(view.Entries) != 2 {
		t.Fatalf("unexpected history: %+v", view)
	}
	if view.Entries[0].Call.CallID != "3" {
		t.Fatalf("expected newest call first, got %s", view.Entries[0].Call.CallID)
	}

	if _, err := service.ListHistory(ctx, wrapperspb.Int32(-1)); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for negative limit, got %v", err)
	}
}
