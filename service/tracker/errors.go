package tracker

import (
	"errors"
	"fmt"

	"github.com/Automobile-System/taskengine/model"
)

// Event identifies the transition a caller attempted.
type Event string

const (
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventComplete Event = "complete"
)

// ErrMissingPauseReason is returned when Pause is invoked without a
// non-empty reason; the task is left untouched.
var ErrMissingPauseReason = errors.New("tracker: pause reason is required")

// InvalidTransitionError reports an event that is illegal for the
// task's current state. It is always surfaced to the caller so that
// programming errors in the console cannot silently no-op.
type InvalidTransitionError struct {
	TaskID  string
	Current model.Status
	Event   Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %v task %v in state %v", e.Event, e.TaskID, e.Current)
}

// NewInvalidTransitionError creates an InvalidTransitionError.
func NewInvalidTransitionError(taskID string, current model.Status, event Event) error {
	return &InvalidTransitionError{TaskID: taskID, Current: current, Event: event}
}
