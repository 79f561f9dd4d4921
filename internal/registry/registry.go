package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/utils"
)

// ErrIndexOutOfRange is returned when a position does not name a stored call.
var ErrIndexOutOfRange = errors.New("call index out of range")

// MergeResult describes what a merge changed.
type MergeResult struct {
	// Stored lists every record appended by this merge, backlog included.
	Stored []models.CallEntry
	// NewlyAdded lists the appended records that should be announced.
	// It is always empty for a first run.
	NewlyAdded []models.CallEntry
	// UpdatedHandled lists positions whose handled flag flipped to true.
	UpdatedHandled []int
	// Duplicates counts incoming records that were already known.
	Duplicates int
}

// Registry is the ordered set of calls the client knows about. The engine
// only appends to it or updates the handled flag in place; it is never
// reordered or truncated. Registry is not safe for concurrent use.
type Registry struct {
	entries  []models.CallEntry
	location *time.Location
}

// New constructs an empty registry. Captions are rendered in loc (local time when nil).
func New(loc *time.Location) *Registry {
	if loc == nil {
		loc = time.Local
	}
	return &Registry{location: loc}
}

// Merge folds records from one fetch cycle into the registry.
//
// A record structurally equal to a stored one is a duplicate; when the incoming
// copy is handled and the stored one is not, the stored flag is flipped in place.
// Unknown records are appended. On a first run they receive slots counting down
// from foundRows-1 (rows arrive newest first) and are not announced; on an
// incremental run the slot is the registry length and the record is announced.
// A negative foundRows means the response carried no row count.
func (r *Registry) Merge(records []models.CallRecord, mode models.FetchMode, foundRows int) MergeResult {
	var res MergeResult
	slot := foundRows - 1

	for _, rec := range records {
		if pos := r.find(rec); pos >= 0 {
			res.Duplicates++
			if rec.Handled && !r.entries[pos].Call.Handled {
				r.entries[pos].Call.Handled = true
				res.UpdatedHandled = append(res.UpdatedHandled, pos)
			}
			continue
		}

		entry := models.CallEntry{
			Position: len(r.entries),
			Caption:  utils.CallCaption(rec.ReportedAt, rec.ServerName, r.location),
			Title:    utils.CallTitle(rec.ReportedAt, r.location),
			Call:     rec,
		}
		if mode == models.FetchModeFirstRun && foundRows >= 0 {
			entry.Slot = slot
			slot--
		} else {
			entry.Slot = len(r.entries)
		}

		r.entries = append(r.entries, entry)
		res.Stored = append(res.Stored, entry)
		if mode == models.FetchModeIncremental {
			res.NewlyAdded = append(res.NewlyAdded, entry)
		}
	}
	return res
}

// MarkHandled flags the call at position as handled. It reports whether the flag changed.
func (r *Registry) MarkHandled(position int) (bool, error) {
	if position < 0 || position >= len(r.entries) {
		return false, fmt.Errorf("mark handled %d: %w", position, ErrIndexOutOfRange)
	}
	if r.entries[position].Call.Handled {
		return false, nil
	}
	r.entries[position].Call.Handled = true
	return true, nil
}

// Get returns the entry at position.
func (r *Registry) Get(position int) (models.CallEntry, error) {
	if position < 0 || position >= len(r.entries) {
		return models.CallEntry{}, fmt.Errorf("get %d: %w", position, ErrIndexOutOfRange)
	}
	return r.entries[position], nil
}

// Len returns the number of stored calls.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot returns a copy of every stored entry in registry order.
func (r *Registry) Snapshot() []models.CallEntry {
	return append([]models.CallEntry(nil), r.entries...)
}

func (r *Registry) find(rec models.CallRecord) int {
	for i := range r.entries {
		if r.entries[i].Call.SameCall(rec) {
			return i
		}
	}
	return -1
}
