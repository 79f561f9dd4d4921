package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/calladmin/calladmin-client/internal/archive"
	"github.com/calladmin/calladmin-client/internal/engine"
	"github.com/calladmin/calladmin-client/internal/models"
)

// StatusView is the JSON shape carried in a GetStatus response.
type StatusView struct {
	Status     string                 `json:"status"`
	NextMode   string                 `json:"nextMode"`
	InFlight   bool                   `json:"inFlight"`
	Escalation models.EscalationState `json:"escalation"`
	FetchP95Ms int64                  `json:"fetchP95Ms"`
	Trackers   []string               `json:"trackers"`
	Calls      []models.CallEntry     `json:"calls"`
}

// HistoryEntry is one archived call in a ListHistory response.
type HistoryEntry struct {
	Call        models.CallRecord `json:"call"`
	FirstSeenAt string            `json:"firstSeenAt"`
	HandledAt   string            `json:"handledAt,omitempty"`
}

// HistoryView is the JSON shape carried in a ListHistory response.
type HistoryView struct {
	Total   int            `json:"total"`
	Entries []HistoryEntry `json:"entries"`
}

// ToStatusStruct converts an engine snapshot to the wire form.
func ToStatusStruct(snap engine.Snapshot) (*structpb.Struct, error) {
	view := StatusView{
		Status:     snap.Status,
		NextMode:   snap.NextMode.String(),
		InFlight:   snap.InFlight,
		Escalation: snap.Escalation,
		FetchP95Ms: snap.FetchP95.Milliseconds(),
		Trackers:   snap.Trackers,
		Calls:      snap.Calls,
	}
	if view.Trackers == nil {
		view.Trackers = []string{}
	}
	if view.Calls == nil {
		view.Calls = []models.CallEntry{}
	}
	return toStruct(view)
}

// ToHistoryStruct converts archived entries to the wire form.
func ToHistoryStruct(entries []archive.Entry, total int) (*structpb.Struct, error) {
	view := HistoryView{Total: total, Entries: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		item := HistoryEntry{
			Call:        e.Call,
			FirstSeenAt: e.FirstSeenAt.UTC().Format(time.RFC3339),
		}
		if !e.HandledAt.IsZero() {
			item.HandledAt = e.HandledAt.UTC().Format(time.RFC3339)
		}
		view.Entries = append(view.Entries, item)
	}
	return toStruct(view)
}

// FromStatusStruct decodes a GetStatus response.
func FromStatusStruct(st *structpb.Struct) (StatusView, error) {
	var view StatusView
	err := fromStruct(st, &view)
	return view, err
}

// FromHistoryStruct decodes a ListHistory response.
func FromHistoryStruct(st *structpb.Struct) (HistoryView, error) {
	var view HistoryView
	err := fromStruct(st, &view)
	return view, err
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	st := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("convert view: %w", err)
	}
	return st, nil
}

func fromStruct(st *structpb.Struct, out any) error {
	if st == nil {
		return fmt.Errorf("empty response")
	}
	raw, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("convert response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
