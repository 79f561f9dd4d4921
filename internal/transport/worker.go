package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrBusy is returned when a fetch is requested while another one is in flight.
	ErrBusy = errors.New("transport worker busy")
	// ErrClosed is returned once the worker has been shut down.
	ErrClosed = errors.New("transport worker closed")
)

// maxBodyBytes caps how much of a response body is retained.
const maxBodyBytes = 4 << 20

// Kind tells the consumer which document a request targets.
type Kind string

const (
	KindNotices  Kind = "notices"
	KindTrackers Kind = "trackers"
)

// Request is one URL to fetch.
type Request struct {
	ID   string
	Kind Kind
	URL  string
}

// Result is delivered once per accepted request.
type Result struct {
	Request    Request
	Content    string
	StatusCode int
	Err        error
	Elapsed    time.Duration
}

// StatusError reports a non-2xx HTTP response. The body is still returned in Result.Content.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Worker performs at most one HTTP GET at a time in the background and
// publishes results on a channel.
type Worker struct {
	client  *http.Client
	logger  *slog.Logger
	results chan Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	busy   bool
	closed bool
}

// NewWorker constructs a worker. connectTimeout bounds dialling and the TLS handshake,
// totalTimeout bounds the whole exchange and defaults to twice connectTimeout.
func NewWorker(connectTimeout, totalTimeout time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if totalTimeout <= 0 {
		totalTimeout = 2 * connectTimeout
	}

	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialer.DialContext
	tr.TLSHandshakeTimeout = connectTimeout

	return newWorker(&http.Client{Transport: tr, Timeout: totalTimeout}, logger)
}

func newWorker(client *http.Client, logger *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		client:  client,
		logger:  logger,
		results: make(chan Result, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Results is the channel on which completed fetches are published.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Busy reports whether a fetch is currently in flight.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Fetch starts req in the background. It never blocks on the network.
func (w *Worker) Fetch(req Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.busy {
		return ErrBusy
	}
	w.busy = true
	w.wg.Add(1)
	go w.run(req)
	return nil
}

// Close aborts any in-flight fetch and waits for the background goroutine to exit.
// No result is published after Close returns.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *Worker) run(req Request) {
	defer w.wg.Done()

	res := w.do(req)

	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	select {
	case w.results <- res:
	case <-w.ctx.Done():
		w.logger.Debug("dropping fetch result after shutdown", slog.String("request_id", req.ID))
	}
}

func (w *Worker) do(req Request) Result {
	start := time.Now()
	res := Result{Request: req}

	httpReq, err := http.NewRequestWithContext(w.ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		res.Elapsed = time.Since(start)
		return res
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	res.Content = string(body)
	res.Elapsed = time.Since(start)

	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Err = &StatusError{StatusCode: resp.StatusCode}
	case readErr != nil:
		res.Err = fmt.Errorf("read body: %w", readErr)
	}

	w.logger.Debug("fetch complete",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res
}
