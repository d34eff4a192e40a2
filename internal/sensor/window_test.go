package sensor

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewWindow_Inverted(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	_, err := NewWindow(start, start.Add(-time.Hour))
	if err == nil {
		t.Fatal("expected error for inverted window")
	}
	if KindOf(err) != KindInvalidWindow {
		t.Errorf("kind = %s, want %s", KindOf(err), KindInvalidWindow)
	}
}

func TestWindow_HalfOpen(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	w, err := NewWindow(start, end)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	if !w.Contains(start) {
		t.Error("window must include its start")
	}
	if w.Contains(end) {
		t.Error("window must exclude its end")
	}
	if !w.Contains(end.Add(-time.Nanosecond)) {
		t.Error("window must include the instant before its end")
	}
}

func TestWindow_Overlaps(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	w := func(startH, endH int) Window {
		return Window{Start: base.Add(time.Duration(startH) * time.Hour), End: base.Add(time.Duration(endH) * time.Hour)}
	}

	cases := []struct {
		name string
		a, b Window
		want bool
	}{
		{"identical", w(0, 2), w(0, 2), true},
		{"partial", w(0, 2), w(1, 3), true},
		{"contained", w(0, 4), w(1, 2), true},
		{"adjacent half-open", w(0, 2), w(2, 4), false},
		{"disjoint", w(0, 1), w(3, 4), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Errorf("Overlaps = %v, want %v", got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Errorf("Overlaps (reversed) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := WrapError(KindSourceUnavailable, "fetch batch", errors.New("dial tcp: refused"))

	if KindOf(err) != KindSourceUnavailable {
		t.Errorf("KindOf = %s, want %s", KindOf(err), KindSourceUnavailable)
	}
	if !Retryable(err) {
		t.Error("connectivity faults must be retryable")
	}

	// Kind survives further wrapping.
	wrapped := fmt.Errorf("load failed after 3 attempts: %w", err)
	if KindOf(wrapped) != KindSourceUnavailable {
		t.Error("kind lost through wrapping")
	}

	if Retryable(ValidationError("power", "out of range")) {
		t.Error("data faults must never be retried")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}
