package utils

import (
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	// 2023-11-14 22:13:20 UTC
	ts := int64(1_700_000_000)

	if got := FormatClock(ts, time.UTC); got != "22:13" {
		t.Fatalf("expected 22:13, got %s", got)
	}
	if got := FormatClock(ts, loc); got != "00:13" {
		t.Fatalf("expected 00:13 in +02:00, got %s", got)
	}
}

func TestCallCaptionIsDeterministic(t *testing.T) {
	first := CallCaption(1_700_000_000, "Public #1", time.UTC)
	second := CallCaption(1_700_000_000, "Public #1", time.UTC)
	if first != second {
		t.Fatalf("caption not deterministic: %q vs %q", first, second)
	}
	if first != "22:13 - Public #1" {
		t.Fatalf("unexpected caption %q", first)
	}
	if title := CallTitle(1_700_000_000, time.UTC); title != "Call at 22:13" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestWholeSeconds(t *testing.T) {
	if got := WholeSeconds(2500 * time.Millisecond); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := WholeSeconds(-time.Second); got != 0 {
		t.Fatalf("expected 0 for negative, got %d", got)
	}
}
