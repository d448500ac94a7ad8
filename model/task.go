package model

import (
	"time"
)

// Status represents the current lifecycle state of a maintenance task.
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusInProgress Status = "inProgress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool { return s == StatusCompleted }

// Task represents a unit of maintenance work assigned to an employee.
// Status, ElapsedSeconds and the pause metadata are owned by the
// tracker service: collaborators mutate them only through its
// transition API.
type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	VehicleDescription string     `json:"vehicleDescription,omitempty"`
	PlateNumber        string     `json:"plateNumber,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	CustomerRef        string     `json:"customerRef,omitempty"`

	Status Status `json:"status"`

	// ElapsedSeconds accumulates whole seconds of wall-clock time spent
	// in StatusInProgress. It never decreases.
	ElapsedSeconds int64 `json:"elapsedSeconds"`

	// Pause metadata: populated only while Status == StatusPaused and
	// cleared on any transition away from it.
	PauseReason              string     `json:"pauseReason,omitempty"`
	RequiresCustomerApproval bool       `json:"requiresCustomerApproval,omitempty"`
	ApprovalRequestedAt      *time.Time `json:"approvalRequestedAt,omitempty"`
	AwaitingCustomerApproval bool       `json:"awaitingCustomerApproval,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClearPauseMetadata resets every field that is only meaningful while
// the task is paused.
func (t *Task) ClearPauseMetadata() {
	t.PauseReason = ""
	t.RequiresCustomerApproval = false
	t.ApprovalRequestedAt = nil
	t.AwaitingCustomerApproval = false
}

// Clone creates a deep copy so that callers can inspect a task without
// racing against subsequent transitions.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Deadline != nil {
		d := *t.Deadline
		clone.Deadline = &d
	}
	if t.ApprovalRequestedAt != nil {
		at := *t.ApprovalRequestedAt
		clone.ApprovalRequestedAt = &at
	}
	return &clone
}
