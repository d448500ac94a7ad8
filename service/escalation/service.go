// Package escalation bridges pause-with-approval transitions to the
// notification gateway and the timer service's timeout primitive. When
// a customer does not respond within the approval window the paused
// task is escalated to an administrator exactly once.
package escalation

import (
	"context"
	"log"
	"time"

	"github.com/Automobile-System/taskengine/internal/clock"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/notification"
	"github.com/Automobile-System/taskengine/service/timer"
)

// DefaultWindow is the approval window applied when none is configured.
const DefaultWindow = 24 * time.Hour

// Resolver re-checks task state on timeout expiry. It is implemented by
// the tracker service; a false result marks the expiry as stale.
// requestedAt is the approval request time captured when the timeout
// was armed, so an expiry can never match a later pause of the same
// task.
type Resolver interface {
	ResolveExpiry(ctx context.Context, taskID string, requestedAt time.Time) (*model.Task, bool, error)
}

// Service coordinates approval escalation.
type Service struct {
	window   time.Duration
	timer    *timer.Service
	gateway  notification.Gateway
	clock    clock.Clock
	resolver Resolver
}

// Option customises the coordinator.
type Option func(*Service)

// WithWindow overrides the approval window (default 24h).
func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock overrides the wall clock used to compute remaining windows
// on restore.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

// New creates an escalation coordinator. The resolver is attached
// afterwards via SetResolver because the tracker is constructed with
// the coordinator already in hand.
func New(timers *timer.Service, gateway notification.Gateway, options ...Option) *Service {
	s := &Service{
		window:  DefaultWindow,
		timer:   timers,
		gateway: gateway,
		clock:   clock.System(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// SetResolver attaches the state re-check callback.
func (s *Service) SetResolver(r Resolver) { s.resolver = r }

// Window returns the configured approval window.
func (s *Service) Window() time.Duration { return s.window }

// OnPause notifies the customer and arms the approval timeout. The
// notification is best-effort: a delivery failure is logged and the
// timeout is armed regardless.
func (s *Service) OnPause(ctx context.Context, task *model.Task, reason string) {
	if task == nil || !task.RequiresCustomerApproval || task.ApprovalRequestedAt == nil {
		return
	}
	if err := s.gateway.NotifyCustomer(ctx, task, reason); err != nil {
		log.Printf("escalation: customer notification for task %v failed: %v", task.ID, err)
	}
	requestedAt := *task.ApprovalRequestedAt
	s.timer.ArmTimeout(task.ID, s.window, func(taskID string) {
		s.expire(taskID, requestedAt)
	})
}

// OnExit disarms any pending approval timeout for the task; idempotent.
func (s *Service) OnExit(taskID string) {
	s.timer.DisarmTimeout(taskID)
}

// OnRestore re-arms a timeout for a task restored in the paused,
// awaiting-approval state. The remaining window is computed from the
// persisted approval request time; an already elapsed window fires
// immediately.
func (s *Service) OnRestore(_ context.Context, task *model.Task) {
	if task == nil || task.ApprovalRequestedAt == nil {
		return
	}
	remaining := s.window - s.clock.Now().Sub(*task.ApprovalRequestedAt)
	if remaining < 0 {
		remaining = 0
	}
	requestedAt := *task.ApprovalRequestedAt
	s.timer.ArmTimeout(task.ID, remaining, func(taskID string) {
		s.expire(taskID, requestedAt)
	})
}

// expire runs when the approval window elapses. The resolver re-checks
// state under the task lock, so a racing Resume/Complete turns the
// expiry into a no-op and the admin is notified at most once.
func (s *Service) expire(taskID string, requestedAt time.Time) {
	ctx := context.Background()
	task, unresolved, err := s.resolver.ResolveExpiry(ctx, taskID, requestedAt)
	if err != nil {
		log.Printf("escalation: expiry check for task %v failed: %v", taskID, err)
		return
	}
	if !unresolved {
		// Stale expiry: the pause was resolved before the callback ran.
		return
	}
	if err := s.gateway.NotifyAdmin(ctx, task); err != nil {
		log.Printf("escalation: admin notification for task %v failed: %v", taskID, err)
	}
}
