package observe

import "time"

// Timing records start/end timestamps of one bot run.
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time
	now         func() time.Time
}

// NewTiming starts a timing using the wall clock.
func NewTiming() *Timing {
	return NewTimingWithClock(time.Now)
}

// NewTimingWithClock starts a timing using now as the clock.
func NewTimingWithClock(now func() time.Time) *Timing {
	return &Timing{
		StartedAt: now(),
		now:       now,
	}
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = t.now()
}

// Duration returns execution duration, measured up to now while still running.
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.now().Sub(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
