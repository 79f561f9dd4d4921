package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calladmin/calladmin-client/internal/metrics"
	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/utils"
)

const (
	sendAttempts = 3
	sendTimeout  = 10 * time.Second
)

// Dispatcher decouples a slow sink from the engine's control path. Events are
// queued without blocking; when the queue is full the event is dropped.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	queue      chan Event
	workers    int
	retryDelay time.Duration
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher wraps sink with a queue of queueSize events drained by workers goroutines.
func NewDispatcher(sink Sink, queueSize, workers int, logger *slog.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sink:       sink,
		logger:     logger.With(slog.String("sink", sink.Name())),
		queue:      make(chan Event, queueSize),
		workers:    workers,
		retryDelay: time.Second,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Close stops accepting events, drains the queue and closes the sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	return d.sink.Close()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(d.ctx, sendTimeout)
		err := utils.Retry(ctx, d.logger, sendAttempts, d.retryDelay, func(ctx context.Context) error {
			return d.sink.Send(ctx, ev)
		})
		cancel()
		if err != nil {
			d.logger.Error("event delivery failed", slog.Int("worker", id), slog.String("event_id", ev.ID), slog.Any("error", err))
		}
	}
}

func (d *Dispatcher) enqueue(ev Event) {
	if !d.sink.Accepts(ev.Kind) {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = d.now()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		metrics.IncSinkDropped(d.sink.Name())
		d.logger.Warn("queue full, dropping event", slog.String("kind", string(ev.Kind)))
	}
}

func (d *Dispatcher) NewCall(_ context.Context, entry models.CallEntry) {
	d.enqueue(Event{Kind: EventNewCall, Call: &entry})
}

func (d *Dispatcher) CallHandled(_ context.Context, entry models.CallEntry) {
	d.enqueue(Event{Kind: EventCallHandled, Call: &entry})
}

func (d *Dispatcher) Error(_ context.Context, message string, severity models.Severity) {
	d.enqueue(Event{Kind: EventError, Message: message, Severity: severity})
}

func (d *Dispatcher) ReconnectRequired(_ context.Context, message string) {
	d.enqueue(Event{Kind: EventReconnectRequired, Message: message, Severity: models.SeverityError})
}

func (d *Dispatcher) TrackersUpdated(_ context.Context, labels []string) {
	d.enqueue(Event{Kind: EventTrackersUpdated, Labels: append([]string(nil), labels...)})
}

func (d *Dispatcher) StatusChanged(_ context.Context, status string) {
	d.enqueue(Event{Kind: EventStatusChanged, Message: status})
}
