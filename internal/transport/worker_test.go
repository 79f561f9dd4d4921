package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitResult(t *testing.T, w *Worker) Result {
	t.Helper()
	select {
	case res := <-w.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fetch result")
		return Result{}
	}
}

func TestWorkerFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("key"))
		fmt.Fprint(w, "<CallAdmin/>")
	}))
	defer srv.Close()

	w := NewWorker(time.Second, 0, nil)
	defer w.Close()

	require.NoError(t, w.Fetch(Request{ID: "1", Kind: KindNotices, URL: srv.URL + "/notice.php?key=abc"}))
	res := awaitResult(t, w)

	require.NoError(t, res.Err)
	assert.Equal(t, "<CallAdmin/>", res.Content)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "1", res.Request.ID)
	assert.Equal(t, KindNotices, res.Request.Kind)
	assert.False(t, w.Busy())
}

func TestWorkerStatusErrorKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWorker(time.Second, 0, nil)
	defer w.Close()

	require.NoError(t, w.Fetch(Request{ID: "1", URL: srv.URL}))
	res := awaitResult(t, w)

	var statusErr *StatusError
	require.True(t, errors.As(res.Err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, res.Content, "maintenance")
}

func TestWorkerRejectsConcurrentFetch(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "done")
	}))
	defer srv.Close()

	w := NewWorker(time.Second, 5*time.Second, nil)
	defer w.Close()

	require.NoError(t, w.Fetch(Request{ID: "1", URL: srv.URL}))
	assert.True(t, w.Busy())
	assert.ErrorIs(t, w.Fetch(Request{ID: "2", URL: srv.URL}), ErrBusy)

	close(release)
	res := awaitResult(t, w)
	assert.Equal(t, "1", res.Request.ID)

	require.NoError(t, w.Fetch(Request{ID: "3", URL: srv.URL}))
	assert.Equal(t, "3", awaitResult(t, w).Request.ID)
}

func TestWorkerTotalTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	w := NewWorker(20*time.Millisecond, 50*time.Millisecond, nil)
	defer w.Close()

	require.NoError(t, w.Fetch(Request{ID: "1", URL: srv.URL}))
	res := awaitResult(t, w)

	require.Error(t, res.Err)
	var netErr net.Error
	require.True(t, errors.As(res.Err, &netErr))
	assert.True(t, netErr.Timeout())
	assert.Less(t, res.Elapsed, 2*time.Second)
}

func TestWorkerConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	w := NewWorker(time.Second, 0, nil)
	defer w.Close()

	require.NoError(t, w.Fetch(Request{ID: "1", URL: addr}))
	res := awaitResult(t, w)
	assert.Error(t, res.Err)
	assert.Empty(t, res.Content)
}

func TestWorkerCloseAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	w := NewWorker(time.Second, 10*time.Second, nil)
	require.NoError(t, w.Fetch(Request{ID: "1", URL: srv.URL}))
	<-started

	done := make(chan struct{})
	go func() {
		_ = w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return")
	}
	assert.ErrorIs(t, w.Fetch(Request{ID: "2", URL: srv.URL}), ErrClosed)
	assert.NoError(t, w.Close())
}
