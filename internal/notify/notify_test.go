package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calladmin/calladmin-client/internal/models"
)

func sampleEntry() models.CallEntry {
	return models.CallEntry{
		Position: 3,
		Slot:     3,
		Caption:  "22:13 - Public #1",
		Title:    "Call at 22:13",
		Call: models.CallRecord{
			CallID:       "42",
			IP:           "203.0.113.7:27015",
			ServerName:   "Public #1",
			TargetName:   "Cheater",
			TargetID:     "STEAM_0:1:111",
			TargetReason: "aimbot",
			ClientName:   "Reporter",
			ClientID:     "STEAM_0:0:222",
			ReportedAt:   1_700_000_000,
		},
	}
}

type fakeSink struct {
	name     string
	kinds    map[EventKind]bool
	received chan Event
	release  chan struct{}
	failures int

	mu     sync.Mutex
	closed bool
}

func (f *fakeSink) Name() string                { return f.name }
func (f *fakeSink) Accepts(kind EventKind) bool { return f.kinds[kind] }

func (f *fakeSink) Send(ctx context.Context, ev Event) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("broker unavailable")
	}
	f.mu.Unlock()

	f.received <- ev
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func awaitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
		return Event{}
	}
}

func TestConsoleFormatsNotifications(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	c := NewConsole(&buf, time.UTC)
	ctx := context.Background()

	c.NewCall(ctx, sampleEntry())
	c.Error(ctx, "Transport error: request failed (retry 1 of 3)", models.SeverityWarning)
	c.ReconnectRequired(ctx, "Too many errors, manual reconnect needed")
	c.TrackersUpdated(ctx, []string{"a", "b"})

	out := buf.String()
	assert.Contains(t, out, `[CALL] #3 22:13 - Public #1: Reporter (STEAM_0:0:222) reported Cheater (STEAM_0:1:111) for "aimbot"`)
	assert.Contains(t, out, "[WARNING] Transport error")
	assert.Contains(t, out, "[RECONNECT] Too many errors")
	assert.Contains(t, out, "[TRACKERS] a, b")
}

func TestDispatcherDeliversAcceptedEvents(t *testing.T) {
	sink := &fakeSink{name: "fake", kinds: kindSet(EventNewCall), received: make(chan Event, 4)}
	d := NewDispatcher(sink, 4, 2, nil)
	d.Start()

	d.StatusChanged(context.Background(), "ignored")
	d.NewCall(context.Background(), sampleEntry())

	ev := awaitEvent(t, sink.received)
	assert.Equal(t, EventNewCall, ev.Kind)
	assert.Equal(t, "42", ev.Key())
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())

	require.NoError(t, d.Close())
	assert.Empty(t, sink.received)
	assert.True(t, sink.closed)
	require.NoError(t, d.Close())
}

func TestDispatcherRetriesFailedSends(t *testing.T) {
	sink := &fakeSink{name: "fake", kinds: kindSet(EventReconnectRequired), received: make(chan Event, 1), failures: 2}
	d := NewDispatcher(sink, 1, 1, nil)
	d.retryDelay = time.Millisecond
	d.Start()
	defer d.Close()

	d.ReconnectRequired(context.Background(), "halted")

	ev := awaitEvent(t, sink.received)
	assert.Equal(t, "halted", ev.Message)
	assert.Equal(t, models.SeverityError, ev.Severity)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sink := &fakeSink{
		name:     "slow",
		kinds:    kindSet(EventNewCall),
		received: make(chan Event, 4),
		release:  make(chan struct{}),
	}
	d := NewDispatcher(sink, 1, 1, nil)
	d.Start()

	entry := sampleEntry()
	d.NewCall(context.Background(), entry)
	awaitEvent(t, sink.received) // worker is now blocked in Send

	entry.Call.CallID = "43"
	d.NewCall(context.Background(), entry) // queued
	entry.Call.CallID = "44"
	d.NewCall(context.Background(), entry) // dropped

	close(sink.release)
	second := awaitEvent(t, sink.received)
	assert.Equal(t, "43", second.Key())

	require.NoError(t, d.Close())
	assert.Empty(t, sink.received)

	// events after close are ignored
	d.NewCall(context.Background(), entry)
}

func TestMultiFansOut(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var a, b bytes.Buffer
	m := Multi{NewConsole(&a, time.UTC), NewConsole(&b, time.UTC)}
	m.StatusChanged(context.Background(), "Waiting for a new report")
	m.CallHandled(context.Background(), sampleEntry())

	for _, buf := range []*bytes.Buffer{&a, &b} {
		assert.Contains(t, buf.String(), "[STATUS] Waiting for a new report")
		assert.Contains(t, buf.String(), "[HANDLED] #3 22:13 - Public #1")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkPublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink([]string{"localhost:9092"}, "calladmin.calls")
	sink.writer = w

	entry := sampleEntry()
	ev := Event{ID: "e1", Kind: EventNewCall, At: time.Unix(1_700_000_000, 0), Call: &entry}
	require.NoError(t, sink.Send(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("42"), w.msgs[0].Key)
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, EventNewCall, decoded.Kind)
	assert.Equal(t, "aimbot", decoded.Call.Call.TargetReason)

	assert.True(t, sink.Accepts(EventCallHandled))
	assert.False(t, sink.Accepts(EventStatusChanged))

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, sink.Send(context.Background(), ev), "kafka write")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

type fakeSender struct {
	params []*bot.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.params = append(f.params, params)
	return &tgmodels.Message{}, nil
}

func TestTelegramSinkFormatsCalls(t *testing.T) {
	sender := &fakeSender{}
	sink := &TelegramSink{sender: sender, chatID: 99, kinds: kindSet(EventNewCall, EventReconnectRequired)}

	entry := sampleEntry()
	require.NoError(t, sink.Send(context.Background(), Event{Kind: EventNewCall, Call: &entry}))
	require.NoError(t, sink.Send(context.Background(), Event{Kind: EventReconnectRequired, Message: "Too many errors"}))

	require.Len(t, sender.params, 2)
	assert.Equal(t, int64(99), sender.params[0].ChatID)
	assert.Contains(t, sender.params[0].Text, "Call at 22:13")
	assert.Contains(t, sender.params[0].Text, "Reason: aimbot")
	assert.Equal(t, "Too many errors", sender.params[1].Text)
	assert.False(t, sink.Accepts(EventError))
}
