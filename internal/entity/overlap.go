package entity

import "time"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Valid() bool {
	return !w.Start.IsZero() && w.Start.Before(w.End)
}

// Overlaps reports whether w and other share any instant. Back-to-back
// windows do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// HasOverlap reports whether candidate conflicts with any of the existing
// confirmed windows of the same child.
func HasOverlap(candidate Window, existing []Window) bool {
	for _, w := range existing {
		if candidate.Overlaps(w) {
			return true
		}
	}
	return false
}
