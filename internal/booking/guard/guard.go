// Package guard holds the pure slot-overlap checks run before a booking
// is requested and again when a provider approves one.
package guard

import (
	"errors"
	"time"
)

var (
	ErrSlotConflict    = errors.New("slot_conflict")
	ErrInvalidInterval = errors.New("invalid_interval")
)

// Slot is a half-open interval [Start, Start+Duration) on a provider's
// calendar.
type Slot struct {
	Start    time.Time
	Duration time.Duration
}

func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Overlaps reports whether two half-open intervals intersect.
// Back-to-back slots (a.End == b.Start) do not overlap.
func Overlaps(a, b Slot) bool {
	return a.Start.Before(b.End()) && b.Start.Before(a.End())
}

// EnsureSlotFree returns ErrSlotConflict when the candidate slot
// intersects any existing slot.
func EnsureSlotFree(candidate Slot, existing []Slot) error {
	if candidate.Duration <= 0 {
		return ErrInvalidInterval
	}
	for _, slot := range existing {
		if Overlaps(candidate, slot) {
			return ErrSlotConflict
		}
	}
	return nil
}
