package resilience

import "time"

// DefaultBackoffMinutes is the fixed retry escalation schedule.
var DefaultBackoffMinutes = []int{1, 5, 15, 60, 360}

// BackoffSchedule maps an attempt number to the delay before the next
// try. The last entry repeats for attempts beyond the schedule length.
type BackoffSchedule []time.Duration

// NewBackoffSchedule builds a schedule from whole minutes.
func NewBackoffSchedule(minutes []int) BackoffSchedule {
	if len(minutes) == 0 {
		minutes = DefaultBackoffMinutes
	}
	s := make(BackoffSchedule, 0, len(minutes))
	for _, m := range minutes {
		s = append(s, time.Duration(m)*time.Minute)
	}
	return s
}

// Delay returns the backoff for the given attempt number (1-based).
func (s BackoffSchedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}
