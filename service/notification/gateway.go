// Package notification defines the narrow interface through which the
// engine reaches the console's notification delivery. Notifications are
// best-effort: a failed delivery never rolls back a task transition.
package notification

import (
	"context"
	"time"

	"github.com/Automobile-System/taskengine/model"
)

// Notice topics.
const (
	// TopicCustomerApprovalRequested asks the customer to sign off on a
	// paused task.
	TopicCustomerApprovalRequested = "customer.approval.requested"

	// TopicAdminApprovalExpired escalates to an administrator after the
	// approval window elapsed without a customer response.
	TopicAdminApprovalExpired = "admin.approval.expired"
)

// Notice is the payload handed to the delivery side.
type Notice struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	TaskID      string    `json:"taskId"`
	Title       string    `json:"title,omitempty"`
	PlateNumber string    `json:"plateNumber,omitempty"`
	CustomerRef string    `json:"customerRef,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Gateway abstracts the external notification collaborator. Errors are
// returned so callers can log them; they must not be treated as
// transition failures.
type Gateway interface {
	NotifyCustomer(ctx context.Context, task *model.Task, reason string) error
	NotifyAdmin(ctx context.Context, task *model.Task) error
}
