package utils

import (
	"testing"
	"time"
)

func TestLatencyWindowPercentile(t *testing.T) {
	window := NewLatencyWindow(10)
	durations := []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	for _, d := range durations {
		window.Observe(d)
	}

	if window.Len() != len(durations) {
		t.Fatalf("expected %d samples, got %d", len(durations), window.Len())
	}
	if got := window.Percentile(0); got != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", got)
	}
	if got := window.Percentile(100); got != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", got)
	}
	if got := window.Percentile(95); got < 40*time.Millisecond {
		t.Fatalf("expected p95 >= 40ms, got %v", got)
	}
}

func TestLatencyWindowOverwritesOldest(t *testing.T) {
	window := NewLatencyWindow(3)
	for i := 1; i <= 10; i++ {
		window.Observe(time.Duration(i) * time.Millisecond)
	}
	if window.Len() != 3 {
		t.Fatalf("expected window size 3, got %d", window.Len())
	}
	if window.Total() != 10 {
		t.Fatalf("expected 10 observed samples, got %d", window.Total())
	}
	if got := window.Percentile(0); got != 8*time.Millisecond {
		t.Fatalf("expected oldest retained sample 8ms, got %v", got)
	}
}

func TestLatencyWindowEmpty(t *testing.T) {
	if got := NewLatencyWindow(0).Percentile(50); got != 0 {
		t.Fatalf("expected zero for empty window, got %v", got)
	}
}
