package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/repo"
)

type fakePresence struct {
	mu       sync.Mutex
	calls    map[string]int
	readyAt  map[string]int
	presence map[string]models.Presence
	err      error
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		calls:    make(map[string]int),
		readyAt:  make(map[string]int),
		presence: make(map[string]models.Presence),
	}
}

func (f *fakePresence) Lookup(_ context.Context, id string) (models.Presence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.err != nil {
		return models.Presence{}, f.err
	}
	p, ok := f.presence[id]
	if !ok || f.calls[id] < f.readyAt[id] {
		return models.Presence{}, repo.ErrPresencePending
	}
	return p, nil
}

func (f *fakePresence) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestResolverResolvesAfterRetries(t *testing.T) {
	presence := newFakePresence()
	presence.presence["STEAM_0:1:1"] = models.Presence{Name: "Alice", Relationship: models.RelationshipFriend, Online: true}
	presence.readyAt["STEAM_0:1:1"] = 3

	r := NewResolver(presence, time.Millisecond, 50, nil)
	res := r.Resolve(context.Background(), "STEAM_0:1:1", "")

	assert.True(t, res.Resolved)
	assert.Equal(t, 3, res.AttemptsMade)
	assert.Equal(t, "Alice", res.ResolvedName)
	assert.Equal(t, "Alice - STEAM_0:1:1 - Friend - Online", res.Label)
}

func TestResolverFallsBackToIdentifier(t *testing.T) {
	presence := newFakePresence()
	r := NewResolver(presence, time.Millisecond, 5, nil)

	res := r.Resolve(context.Background(), "STEAM_0:0:9", "")

	assert.False(t, res.Resolved)
	assert.Equal(t, 5, res.AttemptsMade)
	assert.Equal(t, 5, presence.callCount("STEAM_0:0:9"))
	assert.Equal(t, "STEAM_0:0:9", res.Label)
}

func TestResolverStopsWhenPresenceUnavailable(t *testing.T) {
	presence := newFakePresence()
	presence.err = repo.ErrPresenceUnavailable
	r := NewResolver(presence, time.Millisecond, 50, nil)

	res := r.Resolve(context.Background(), "x", "")

	assert.Equal(t, 1, res.AttemptsMade)
	assert.Equal(t, "x", res.Label)
}

func TestResolverKeepsProbingOnErrors(t *testing.T) {
	presence := newFakePresence()
	presence.err = errors.New("connection reset")
	r := NewResolver(presence, time.Millisecond, 3, nil)

	res := r.Resolve(context.Background(), "x", "")

	assert.Equal(t, 3, res.AttemptsMade)
	assert.False(t, res.Resolved)
}

func TestResolverHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewResolver(newFakePresence(), time.Hour, 50, nil)

	done := make(chan models.TrackerResolution, 1)
	go func() { done <- r.Resolve(ctx, "x", "") }()

	select {
	case res := <-done:
		assert.Equal(t, "x", res.Label)
		assert.Equal(t, 1, res.AttemptsMade)
	case <-time.After(5 * time.Second):
		t.Fatal("resolve ignored cancellation")
	}
}

func TestResolveAllKeepsOrder(t *testing.T) {
	presence := newFakePresence()
	presence.presence["b"] = models.Presence{Name: "Bob"}
	presence.presence["me"] = models.Presence{Name: "Me"}
	r := NewResolver(presence, time.Millisecond, 2, nil)

	got := r.ResolveAll(context.Background(), []string{"a", "b", "me"}, "me")

	assert.Equal(t, []string{"a", "Bob - b", "Yourself: Me - me"}, Labels(got))
}

func TestTrackerLabel(t *testing.T) {
	tests := []struct {
		name     string
		presence models.Presence
		actor    string
		want     string
	}{
		{name: "plain", presence: models.Presence{Name: "Eve", Relationship: models.RelationshipNone}, want: "Eve - id"},
		{name: "friend offline", presence: models.Presence{Name: "Eve", Relationship: models.RelationshipFriend}, want: "Eve - id - Friend - Offline"},
		{name: "friend online", presence: models.Presence{Name: "Eve", Relationship: models.RelationshipFriend, Online: true}, want: "Eve - id - Friend - Online"},
		{name: "self", presence: models.Presence{Name: "Eve"}, actor: "id", want: "Yourself: Eve - id"},
		{name: "self friend online", presence: models.Presence{Name: "Eve", Relationship: models.RelationshipFriend, Online: true}, actor: "id", want: "Yourself: Eve - id"},
		{name: "other actor", presence: models.Presence{Name: "Eve", Relationship: models.RelationshipFriend}, actor: "me", want: "Eve - id - Friend - Offline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrackerLabel("id", tt.presence, tt.actor))
		})
	}
}

func TestLabelsPlaceholder(t *testing.T) {
	assert.Equal(t, []string{models.NoTrackersLabel}, Labels(nil))
}
