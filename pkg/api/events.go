package api

import "time"

// AttemptEvent is a journaled AttemptRecord. It is intentionally small:
// the error is kept as a string so the journal survives process restarts.
type AttemptEvent struct {
	RunID   string
	Step    int
	Label   string
	Attempt int
	Outcome AttemptOutcome
	Error   string
	Elapsed time.Duration
	At      time.Time

	TimedOut bool
}

// NewAttemptEvent converts rec into a journal entry for step idx of runID.
func NewAttemptEvent(runID string, idx int, label string, rec AttemptRecord) AttemptEvent {
	ev := AttemptEvent{
		RunID:    runID,
		Step:     idx,
		Label:    label,
		Attempt:  rec.Attempt,
		Outcome:  rec.Outcome,
		Elapsed:  rec.Elapsed,
		At:       rec.Start,
		TimedOut: rec.TimedOut,
	}
	if rec.Err != nil {
		ev.Error = rec.Err.Error()
	}
	return ev
}
