package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calladmin/calladmin-client/internal/metrics"
	"github.com/calladmin/calladmin-client/internal/models"
	"github.com/calladmin/calladmin-client/internal/parser"
	"github.com/calladmin/calladmin-client/internal/registry"
	"github.com/calladmin/calladmin-client/internal/repo"
	"github.com/calladmin/calladmin-client/internal/transport"
	"github.com/calladmin/calladmin-client/internal/utils"
)

var (
	// ErrStopped is returned by commands once Run has returned.
	ErrStopped = errors.New("engine stopped")
	// ErrTrackersDisabled is returned by RefreshTrackers without a trackers fetcher.
	ErrTrackersDisabled = errors.New("engine: trackers fetcher not configured")
)

// Engine status texts reported through Notifier.StatusChanged.
const (
	StatusConnecting        = "Connecting"
	StatusWaiting           = "Waiting for a new report"
	StatusReconnectRequired = "Reconnect required"
)

// Fetcher is the single-flight transport the engine drives.
type Fetcher interface {
	Fetch(req transport.Request) error
	Results() <-chan transport.Result
	Close() error
}

// Notifier receives user facing events. Implementations must not block for long;
// they run on the control path.
type Notifier interface {
	NewCall(ctx context.Context, entry models.CallEntry)
	CallHandled(ctx context.Context, entry models.CallEntry)
	Error(ctx context.Context, message string, severity models.Severity)
	ReconnectRequired(ctx context.Context, message string)
	TrackersUpdated(ctx context.Context, labels []string)
	StatusChanged(ctx context.Context, status string)
}

// Journal persists merged calls.
type Journal interface {
	RecordCalls(ctx context.Context, calls []models.CallRecord) error
	MarkHandled(ctx context.Context, call models.CallRecord) error
}

// Ticker abstracts time.Ticker so tests can drive the scheduler.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the production Ticker factory.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Settings is the read-only configuration consumed by the engine.
type Settings struct {
	BaseURL     string
	Key         string
	Interval    time.Duration
	MaxAttempts int
	MaxCalls    int
	Spectator   bool
	ActorID     string
	// Available gates new call notifications; calls are stored either way.
	Available bool
}

// Validate checks the settings before they reach the control path.
func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.BaseURL) == "" {
		problems = append(problems, "base URL is required")
	}
	if s.Interval <= 0 {
		problems = append(problems, "interval must be positive")
	}
	if s.MaxAttempts < 1 {
		problems = append(problems, "max attempts must be at least 1")
	}
	if s.MaxCalls < 1 {
		problems = append(problems, "max calls must be at least 1")
	}
	if !s.Spectator && strings.TrimSpace(s.ActorID) == "" {
		problems = append(problems, "actor id is required unless spectating")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid engine settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Deps are the collaborators wired by the composition root.
type Deps struct {
	Notices   Fetcher
	Trackers  Fetcher
	Parser    *parser.Parser
	Registry  *registry.Registry
	Notifier  Notifier
	Journal   Journal
	Resolver  *Resolver
	Logger    *slog.Logger
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

// Snapshot is a point-in-time copy of the control path state.
type Snapshot struct {
	Calls      []models.CallEntry
	Escalation models.EscalationState
	NextMode   models.FetchMode
	InFlight   bool
	Trackers   []string
	Status     string
	FetchP95   time.Duration
}

type trackerBatch struct {
	seq    uint64
	labels []string
}

// Engine owns the poll scheduler, the call registry and the escalation machine.
// All of them are touched only from the goroutine executing Run.
type Engine struct {
	deps       Deps
	logger     *slog.Logger
	settings   Settings
	endpoints  repo.Endpoints
	escalation *Escalation
	latencies  *utils.LatencyWindow

	commands chan func(context.Context)
	resolved chan trackerBatch
	stopped  chan struct{}
	started  atomic.Bool

	ticker       Ticker
	firstRun     bool
	firstFetchAt time.Time
	generation   uint64
	inFlight     bool
	inFlightGen  uint64
	cycle        models.FetchCycle
	status       string

	trackerSeq    uint64
	trackerLabels []string
	resolveCtx    context.Context
	resolveCancel context.CancelFunc
	batchCancel   context.CancelFunc
	batchDone     chan struct{}
	resolvers     sync.WaitGroup
}

// New validates settings and constructs an Engine. Nothing runs until Run is called.
func New(deps Deps, settings Settings) (*Engine, error) {
	if deps.Notices == nil {
		return nil, errors.New("engine: notices fetcher is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("engine: notifier is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.New(deps.Logger)
	}
	if deps.Registry == nil {
		deps.Registry = registry.New(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewTicker == nil {
		deps.NewTicker = NewTimeTicker
	}

	return &Engine{
		deps:       deps,
		logger:     deps.Logger,
		settings:   settings,
		endpoints:  repo.NewEndpoints(settings.BaseURL, settings.Key),
		escalation: NewEscalation(settings.MaxAttempts),
		latencies:  utils.NewLatencyWindow(256),
		commands:   make(chan func(context.Context)),
		resolved:   make(chan trackerBatch),
		stopped:    make(chan struct{}),
	}, nil
}

// Run executes the control loop until ctx is cancelled. On return the scheduler is
// stopped and every background fetch and tracker resolution has terminated.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine: already started")
	}
	defer close(e.stopped)

	e.resolveCtx, e.resolveCancel = context.WithCancel(ctx)
	defer e.shutdown()

	e.restart(ctx, "start")

	var trackerResults <-chan transport.Result
	if e.deps.Trackers != nil {
		trackerResults = e.deps.Trackers.Results()
	}

	for {
		var tick <-chan time.Time
		if e.ticker != nil {
			tick = e.ticker.C()
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping")
			return nil
		case <-tick:
			e.onTick()
		case res := <-e.deps.Notices.Results():
			e.onNotices(ctx, res)
		case res := <-trackerResults:
			e.onTrackers(ctx, res)
		case batch := <-e.resolved:
			e.onResolved(ctx, batch)
		case cmd := <-e.commands:
			cmd(ctx)
		}
	}
}

// shutdown stops ticking first, then waits for the workers and resolvers.
func (e *Engine) shutdown() {
	e.stopTicker()
	if err := e.deps.Notices.Close(); err != nil {
		e.logger.Warn("closing notices worker failed", slog.Any("error", err))
	}
	if e.deps.Trackers != nil {
		if err := e.deps.Trackers.Close(); err != nil {
			e.logger.Warn("closing trackers worker failed", slog.Any("error", err))
		}
	}
	e.resolveCancel()
	e.resolvers.Wait()
}

// Reconnect clears the escalation state and restarts polling with a first run.
func (e *Engine) Reconnect(ctx context.Context) error {
	return e.exec(ctx, func(ctx context.Context) {
		e.restart(ctx, "reconnect")
	})
}

// Reconfigure applies new settings and restarts polling with a first run.
func (e *Engine) Reconfigure(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return e.exec(ctx, func(ctx context.Context) {
		e.settings = settings
		e.endpoints = repo.NewEndpoints(settings.BaseURL, settings.Key)
		e.escalation.SetThreshold(settings.MaxAttempts)
		e.restart(ctx, "reconfigure")
	})
}

// MarkHandled flags the call at position as handled.
func (e *Engine) MarkHandled(ctx context.Context, position int) error {
	var err error
	execErr := e.exec(ctx, func(ctx context.Context) {
		var changed bool
		changed, err = e.deps.Registry.MarkHandled(position)
		if err != nil || !changed {
			return
		}
		entry, _ := e.deps.Registry.Get(position)
		e.deps.Notifier.CallHandled(ctx, entry)
		e.journalHandled(ctx, entry.Call)
		metrics.AddCalls("handled", 1)
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// RefreshTrackers requests the trackers list. It returns transport.ErrBusy while a
// previous request is outstanding.
func (e *Engine) RefreshTrackers(ctx context.Context) error {
	if e.deps.Trackers == nil {
		return ErrTrackersDisabled
	}
	var err error
	execErr := e.exec(ctx, func(context.Context) {
		err = e.deps.Trackers.Fetch(transport.Request{
			ID:   uuid.NewString(),
			Kind: transport.KindTrackers,
			URL:  e.endpoints.TrackersURL(),
		})
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.exec(ctx, func(context.Context) {
		next := models.FetchModeIncremental
		if e.firstRun {
			next = models.FetchModeFirstRun
		}
		snap = Snapshot{
			Calls:      e.deps.Registry.Snapshot(),
			Escalation: e.escalation.State(),
			NextMode:   next,
			InFlight:   e.inFlight,
			Trackers:   append([]string(nil), e.trackerLabels...),
			Status:     e.status,
			FetchP95:   e.latencies.Percentile(95),
		}
	})
	return snap, err
}

// exec runs fn on the control path and waits for it to finish.
func (e *Engine) exec(ctx context.Context, fn func(context.Context)) error {
	done := make(chan struct{})
	cmd := func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	}

	select {
	case e.commands <- cmd:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) restart(ctx context.Context, reason string) {
	e.stopTicker()
	e.generation++
	e.escalation.Reset()
	e.firstRun = true
	e.firstFetchAt = time.Time{}
	metrics.SetEscalation(0, false)

	e.ticker = e.deps.NewTicker(e.settings.Interval)
	e.setStatus(ctx, StatusConnecting)
	e.logger.Info("polling started",
		slog.String("reason", reason),
		slog.Duration("interval", e.settings.Interval),
		slog.Int("max_attempts", e.settings.MaxAttempts),
	)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) onTick() {
	if e.escalation.Halted() {
		return
	}
	if e.inFlight {
		e.logger.Debug("fetch still in flight, skipping tick")
		return
	}

	now := e.deps.Now()
	mode := models.FetchModeIncremental
	if e.firstRun {
		mode = models.FetchModeFirstRun
		e.firstFetchAt = now
	}

	query := repo.NoticeQuery{
		Mode:     mode,
		Interval: e.settings.Interval,
		MaxCalls: e.settings.MaxCalls,
		Elapsed:  now.Sub(e.firstFetchAt),
	}
	if !e.settings.Spectator {
		query.StoreID = e.settings.ActorID
	}

	cycle := models.FetchCycle{
		ID:                     uuid.NewString(),
		Mode:                   mode,
		RequestedAt:            now,
		ElapsedSinceFirstFetch: query.Elapsed,
	}
	err := e.deps.Notices.Fetch(transport.Request{
		ID:   cycle.ID,
		Kind: transport.KindNotices,
		URL:  e.endpoints.NoticeURL(query),
	})
	if err != nil {
		e.logger.Debug("fetch not started", slog.String("cycle_id", cycle.ID), slog.Any("error", err))
		return
	}

	e.inFlight = true
	e.inFlightGen = e.generation
	e.cycle = cycle
	e.firstRun = false
	e.logger.Debug("fetch started", slog.String("cycle_id", cycle.ID), slog.String("mode", mode.String()))
}

func (e *Engine) onNotices(ctx context.Context, res transport.Result) {
	e.inFlight = false
	cycle := e.cycle
	mode := cycle.Mode.String()
	log := e.logger.With(slog.String("cycle_id", cycle.ID), slog.String("mode", mode))

	if e.inFlightGen != e.generation {
		metrics.ObserveFetch(mode, metrics.OutcomeStale, res.Elapsed)
		log.Debug("discarding result from before restart")
		return
	}

	if res.Err != nil {
		e.fail(ctx, log, cycle, models.NewFetchError(models.ErrorKindTransport, "request failed", res.Err), res.Elapsed)
		return
	}
	if strings.TrimSpace(res.Content) == "" {
		metrics.ObserveFetch(mode, metrics.OutcomeEmpty, res.Elapsed)
		log.Debug("empty response")
		return
	}

	parsed := e.deps.Parser.ParseNotices(res.Content, cycle.Mode)
	if parsed.ParseErr != nil {
		e.fail(ctx, log, cycle, models.NewFetchError(models.ErrorKindParse, "couldn't parse the CallAdmin API", parsed.ParseErr), res.Elapsed)
		return
	}

	foundRows := -1
	if parsed.FoundRowsKnown {
		foundRows = parsed.FoundRows
		cycle.RowsExpected = parsed.FoundRows
	}
	merged := e.deps.Registry.Merge(parsed.Records, cycle.Mode, foundRows)
	e.publish(ctx, log, cycle, merged)

	if parsed.APIError != "" {
		e.fail(ctx, log, cycle, models.NewFetchError(models.ErrorKindAPI, parsed.APIError, nil), res.Elapsed)
		return
	}

	e.escalation.Succeed()
	metrics.SetEscalation(0, false)
	metrics.ObserveFetch(mode, metrics.OutcomeSuccess, res.Elapsed)
	e.latencies.Observe(res.Elapsed)
	if n := e.latencies.Total(); n >= 20 && n%20 == 0 {
		log.Info("fetch latency", slog.Duration("p95", e.latencies.Percentile(95)), slog.Int("samples", n))
	}
	e.setStatus(ctx, StatusWaiting)
	log.Debug("fetch cycle complete",
		slog.Int("records", len(parsed.Records)),
		slog.Int("dropped", len(parsed.Dropped)),
		slog.Int("new", len(merged.NewlyAdded)),
		slog.Duration("elapsed", res.Elapsed),
	)
}

func (e *Engine) publish(ctx context.Context, log *slog.Logger, cycle models.FetchCycle, merged registry.MergeResult) {
	for _, pos := range merged.UpdatedHandled {
		entry, err := e.deps.Registry.Get(pos)
		if err != nil {
			continue
		}
		e.deps.Notifier.CallHandled(ctx, entry)
		e.journalHandled(ctx, entry.Call)
	}

	if len(merged.Stored) > 0 && e.deps.Journal != nil {
		calls := make([]models.CallRecord, 0, len(merged.Stored))
		for _, entry := range merged.Stored {
			calls = append(calls, entry.Call)
		}
		if err := e.deps.Journal.RecordCalls(ctx, calls); err != nil {
			log.Warn("journal write failed", slog.Any("error", err))
		}
	}

	for _, entry := range merged.NewlyAdded {
		log.Info("new call",
			slog.String("call_id", entry.Call.CallID),
			slog.String("server", entry.Call.ServerName),
			slog.String("target", entry.Call.TargetName),
		)
		if e.settings.Available {
			e.deps.Notifier.NewCall(ctx, entry)
		}
	}

	if cycle.Mode == models.FetchModeFirstRun {
		metrics.AddCalls("backlog", len(merged.Stored))
	}
	metrics.AddCalls("new", len(merged.NewlyAdded))
	metrics.AddCalls("handled", len(merged.UpdatedHandled))
	metrics.AddCalls("duplicate", merged.Duplicates)
}

func (e *Engine) fail(ctx context.Context, log *slog.Logger, cycle models.FetchCycle, ferr *models.FetchError, elapsed time.Duration) {
	metrics.ObserveFetch(cycle.Mode.String(), metrics.OutcomeError, elapsed)

	switch e.escalation.Fail() {
	case OutcomeRetry:
		msg := fmt.Sprintf("%s (retry %d of %d)", ferr.Error(), e.escalation.Attempts(), e.escalation.Threshold())
		log.Warn("fetch cycle failed", slog.String("kind", string(ferr.Kind)), slog.Any("error", ferr))
		metrics.SetEscalation(e.escalation.Attempts(), false)
		e.deps.Notifier.Error(ctx, msg, models.SeverityWarning)
	case OutcomeReconnectRequired:
		e.stopTicker()
		msg := "Too many errors, manual reconnect needed: " + ferr.Error()
		log.Error("polling halted", slog.String("kind", string(ferr.Kind)), slog.Any("error", ferr))
		metrics.SetEscalation(e.escalation.Attempts(), true)
		e.setStatus(ctx, StatusReconnectRequired)
		e.deps.Notifier.ReconnectRequired(ctx, msg)
	case OutcomeHalted:
		log.Debug("ignoring failure while halted", slog.Any("error", ferr))
	}
}

func (e *Engine) onTrackers(ctx context.Context, res transport.Result) {
	ids, err := DecodeTrackers(e.deps.Parser, res)
	if err != nil {
		e.trackerFailure(ctx, err.Error())
		return
	}

	e.cancelResolution()
	e.trackerSeq++
	if len(ids) == 0 || e.deps.Resolver == nil {
		labels := ids
		if len(labels) == 0 {
			labels = []string{models.NoTrackersLabel}
		}
		e.onResolved(ctx, trackerBatch{seq: e.trackerSeq, labels: labels})
		return
	}

	// A new batch starts probing only after the superseded one has exited, so an
	// identifier is never looked up by two batches at once.
	prev := e.batchDone
	bctx, cancel := context.WithCancel(e.resolveCtx)
	done := make(chan struct{})
	e.batchCancel, e.batchDone = cancel, done

	seq, actor := e.trackerSeq, e.settings.ActorID
	e.resolvers.Add(1)
	go func() {
		defer e.resolvers.Done()
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if bctx.Err() != nil {
			return
		}
		labels := Labels(e.deps.Resolver.ResolveAll(bctx, ids, actor))
		select {
		case e.resolved <- trackerBatch{seq: seq, labels: labels}:
		case <-bctx.Done():
		}
	}()
}

// cancelResolution stops the running tracker batch, if any.
func (e *Engine) cancelResolution() {
	if e.batchCancel != nil {
		e.batchCancel()
		e.batchCancel = nil
	}
}

func (e *Engine) trackerFailure(ctx context.Context, msg string) {
	e.logger.Warn("tracker refresh failed", slog.String("error", msg))
	e.cancelResolution()
	e.trackerSeq++
	e.onResolved(ctx, trackerBatch{seq: e.trackerSeq, labels: []string{models.NoTrackersLabel}})
	e.deps.Notifier.Error(ctx, msg, models.SeverityWarning)
}

func (e *Engine) onResolved(ctx context.Context, batch trackerBatch) {
	if batch.seq != e.trackerSeq {
		return
	}
	e.trackerLabels = batch.labels
	e.deps.Notifier.TrackersUpdated(ctx, append([]string(nil), batch.labels...))
}

func (e *Engine) journalHandled(ctx context.Context, call models.CallRecord) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.MarkHandled(ctx, call); err != nil {
		e.logger.Warn("journal update failed", slog.String("call_id", call.CallID), slog.Any("error", err))
	}
}

func (e *Engine) setStatus(ctx context.Context, status string) {
	if e.status == status {
		return
	}
	e.status = status
	e.deps.Notifier.StatusChanged(ctx, status)
}
