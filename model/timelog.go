package model

import "time"

// TimeLogEntry is an immutable record of a single work session. An
// entry is opened when a task starts and closed when it completes;
// after closing, Remarks is the only field that may still change.
type TimeLogEntry struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"taskId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"` // nil while the session is open

	// DurationSeconds reflects only time accumulated while the task was
	// in progress; paused intervals are excluded.
	DurationSeconds int64 `json:"durationSeconds"`

	Remarks   string    `json:"remarks,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Closed reports whether the session has been finalised.
func (e *TimeLogEntry) Closed() bool { return e.EndTime != nil }

// Clone returns a deep copy of the entry.
func (e *TimeLogEntry) Clone() *TimeLogEntry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.EndTime != nil {
		end := *e.EndTime
		clone.EndTime = &end
	}
	return &clone
}
