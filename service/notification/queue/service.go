package queue

import (
	"context"

	"github.com/Automobile-System/taskengine/internal/clock"
	"github.com/Automobile-System/taskengine/internal/idgen"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/messaging"
	"github.com/Automobile-System/taskengine/service/notification"
)

// service publishes notices to a messaging queue; the console's
// delivery workers consume and fan them out (mail, push, dashboard).
type service struct {
	queue messaging.Queue[notification.Notice]
	clock clock.Clock
}

// New creates a queue-backed notification gateway.
func New(q messaging.Queue[notification.Notice], clk clock.Clock) notification.Gateway {
	if clk == nil {
		clk = clock.System()
	}
	return &service{queue: q, clock: clk}
}

func (s *service) NotifyCustomer(ctx context.Context, task *model.Task, reason string) error {
	return s.publish(ctx, notification.TopicCustomerApprovalRequested, task, reason)
}

func (s *service) NotifyAdmin(ctx context.Context, task *model.Task) error {
	return s.publish(ctx, notification.TopicAdminApprovalExpired, task, task.PauseReason)
}

func (s *service) publish(ctx context.Context, topic string, task *model.Task, reason string) error {
	notice := &notification.Notice{
		ID:          idgen.New(),
		Topic:       topic,
		TaskID:      task.ID,
		Title:       task.Title,
		PlateNumber: task.PlateNumber,
		CustomerRef: task.CustomerRef,
		Reason:      reason,
		CreatedAt:   s.clock.Now(),
	}
	return s.queue.Publish(ctx, notice)
}

var _ notification.Gateway = (*service)(nil)
