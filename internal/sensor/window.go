package sensor

import (
	"fmt"
	"time"
)

// Window is a half-open time range [Start, End) bounding one extraction.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates the bounds and returns a Window.
func NewWindow(start, end time.Time) (Window, error) {
	if start.After(end) {
		return Window{}, &Error{
			Kind:   KindInvalidWindow,
			Reason: fmt.Sprintf("window start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		}
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether ts falls inside the half-open range.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Overlaps reports whether two half-open windows share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
