package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyWindow keeps the most recent fetch durations in a fixed ring.
type LatencyWindow struct {
	mu    sync.Mutex
	ring  []time.Duration
	next  int
	full  bool
	total int
}

// NewLatencyWindow creates a window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 256
	}
	return &LatencyWindow{ring: make([]time.Duration, size)}
}

// Observe records a duration, overwriting the oldest sample once the ring is full.
func (w *LatencyWindow) Observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.ring[w.next] = d
	w.next = (w.next + 1) % len(w.ring)
	if w.next == 0 {
		w.full = true
	}
	w.total++
}

// Len returns the number of samples currently held.
func (w *LatencyWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size()
}

// Total returns how many samples were ever observed.
func (w *LatencyWindow) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Percentile returns the p-th percentile (0-100) of the held samples, zero when empty.
func (w *LatencyWindow) Percentile(p float64) time.Duration {
	w.mu.Lock()
	n := w.size()
	sorted := append([]time.Duration(nil), w.ring[:n]...)
	w.mu.Unlock()

	if n == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	return sorted[int((p/100.0)*float64(n-1))]
}

func (w *LatencyWindow) size() int {
	if w.full {
		return len(w.ring)
	}
	return w.next
}
