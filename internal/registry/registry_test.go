package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calladmin/calladmin-client/internal/models"
)

func call(id string, reportedAt int64) models.CallRecord {
	return models.CallRecord{
		CallID:       id,
		IP:           "203.0.113.7:27015",
		ServerName:   "Public #1",
		TargetName:   "Cheater",
		TargetID:     "STEAM_0:1:111",
		TargetReason: "aimbot",
		ClientName:   "Reporter",
		ClientID:     "STEAM_0:0:222",
		ReportedAt:   reportedAt,
	}
}

func TestMergeFirstRunIsSilentAndCountsSlotsDown(t *testing.T) {
	r := New(time.UTC)

	res := r.Merge([]models.CallRecord{call("3", 300), call("2", 200), call("1", 100)}, models.FetchModeFirstRun, 3)

	assert.Empty(t, res.NewlyAdded)
	require.Len(t, res.Stored, 3)
	assert.Equal(t, []int{2, 1, 0}, []int{res.Stored[0].Slot, res.Stored[1].Slot, res.Stored[2].Slot})
	assert.Equal(t, 3, r.Len())
}

func TestMergeFirstRunWithoutRowCountUsesRegistryLength(t *testing.T) {
	r := New(time.UTC)

	res := r.Merge([]models.CallRecord{call("2", 200), call("1", 100)}, models.FetchModeFirstRun, -1)

	require.Len(t, res.Stored, 2)
	assert.Equal(t, 0, res.Stored[0].Slot)
	assert.Equal(t, 1, res.Stored[1].Slot)
	assert.Empty(t, res.NewlyAdded)
}

func TestMergeIncrementalAnnouncesNewCalls(t *testing.T) {
	r := New(time.UTC)
	r.Merge([]models.CallRecord{call("1", 100)}, models.FetchModeFirstRun, 1)

	res := r.Merge([]models.CallRecord{call("1", 100), call("2", 1_700_000_000)}, models.FetchModeIncremental, -1)

	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.NewlyAdded, 1)
	entry := res.NewlyAdded[0]
	assert.Equal(t, "2", entry.Call.CallID)
	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, 1, entry.Slot)
	assert.Equal(t, "22:13 - Public #1", entry.Caption)
	assert.Equal(t, "Call at 22:13", entry.Title)
}

func TestMergeFlipsHandledInPlace(t *testing.T) {
	r := New(time.UTC)
	r.Merge([]models.CallRecord{call("1", 100), call("2", 200)}, models.FetchModeFirstRun, 2)

	handled := call("2", 200)
	handled.Handled = true
	res := r.Merge([]models.CallRecord{handled}, models.FetchModeIncremental, -1)

	assert.Empty(t, res.NewlyAdded)
	assert.Equal(t, []int{1}, res.UpdatedHandled)
	assert.Equal(t, 2, r.Len())
	got, err := r.Get(1)
	require.NoError(t, err)
	assert.True(t, got.Call.Handled)

	// an unhandled copy never clears the flag
	res = r.Merge([]models.CallRecord{call("2", 200)}, models.FetchModeIncremental, -1)
	assert.Empty(t, res.UpdatedHandled)
	got, _ = r.Get(1)
	assert.True(t, got.Call.Handled)
}

func TestMergeDeduplicatesWithinBatch(t *testing.T) {
	r := New(time.UTC)

	res := r.Merge([]models.CallRecord{call("1", 100), call("1", 100)}, models.FetchModeIncremental, -1)

	assert.Len(t, res.NewlyAdded, 1)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, r.Len())
}

func TestMergeTreatsDifferentFieldsAsDistinct(t *testing.T) {
	r := New(time.UTC)
	a := call("1", 100)
	b := call("1", 100)
	b.TargetReason = "wallhack"

	r.Merge([]models.CallRecord{a}, models.FetchModeIncremental, -1)
	res := r.Merge([]models.CallRecord{b}, models.FetchModeIncremental, -1)

	assert.Len(t, res.NewlyAdded, 1)
	assert.Equal(t, 2, r.Len())
}

func TestMarkHandled(t *testing.T) {
	r := New(time.UTC)
	r.Merge([]models.CallRecord{call("1", 100)}, models.FetchModeIncremental, -1)

	changed, err := r.MarkHandled(0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.MarkHandled(0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = r.MarkHandled(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = r.MarkHandled(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New(time.UTC)
	r.Merge([]models.CallRecord{call("1", 100)}, models.FetchModeIncremental, -1)

	snap := r.Snapshot()
	snap[0].Call.Handled = true

	got, err := r.Get(0)
	require.NoError(t, err)
	assert.False(t, got.Call.Handled)
}
