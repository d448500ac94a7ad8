// Package tracker owns the task state machine. It is the sole writer
// of a task's status, elapsed time and pause metadata; every other
// component requests mutations through its transition API. Transitions
// for a given task are serialized, tasks are independent of each other.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Automobile-System/taskengine/internal/clock"
	"github.com/Automobile-System/taskengine/internal/idgen"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/dao"
	"github.com/Automobile-System/taskengine/service/timelog"
	"github.com/Automobile-System/taskengine/service/timer"
	"github.com/Automobile-System/taskengine/tracing"
)

// Escalation receives pause/exit notifications from the state machine.
// It is an interface so the tracker does not depend on the concrete
// coordinator, which in turn calls back into the tracker on expiry.
type Escalation interface {
	// OnPause is invoked after a pause requiring customer approval has
	// been persisted.
	OnPause(ctx context.Context, task *model.Task, reason string)

	// OnExit disarms any pending approval timeout for the task.
	OnExit(taskID string)

	// OnRestore re-arms the approval timeout for a task restored in the
	// paused-awaiting-approval state, honouring the remaining window.
	OnRestore(ctx context.Context, task *model.Task)
}

// Service implements the task state machine.
type Service struct {
	tasks      dao.Service[string, model.Task]
	timer      *timer.Service
	recorder   *timelog.Service
	clock      clock.Clock
	escalation Escalation

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customises the tracker service.
type Option func(*Service)

// WithEscalation attaches the approval escalation coordinator.
func WithEscalation(e Escalation) Option {
	return func(s *Service) { s.escalation = e }
}

// New creates the state machine service.
func New(tasks dao.Service[string, model.Task], timers *timer.Service, recorder *timelog.Service, clk clock.Clock, options ...Option) *Service {
	if clk == nil {
		clk = clock.System()
	}
	s := &Service{
		tasks:    tasks,
		timer:    timers,
		recorder: recorder,
		clock:    clk,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// SetEscalation wires the coordinator after construction; the engine
// uses it to break the tracker/escalation construction cycle.
func (s *Service) SetEscalation(e Escalation) { s.escalation = e }

// lockTask serializes transitions per task id.
func (s *Service) lockTask(taskID string) func() {
	s.mu.Lock()
	l, ok := s.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[taskID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Service) load(ctx context.Context, taskID string) (*model.Task, error) {
	if taskID == "" {
		return nil, dao.ErrInvalidID
	}
	task, err := s.tasks.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %v: %w", taskID, err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %v: %w", taskID, dao.ErrNotFound)
	}
	return task, nil
}

// Create registers a task assigned by the scheduling collaborator. The
// task always enters the machine in StatusNotStarted.
func (s *Service) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	if task == nil {
		return nil, dao.ErrNilEntity
	}
	if task.ID == "" {
		task.ID = idgen.New()
	}
	now := s.clock.Now()
	task.Status = model.StatusNotStarted
	task.ElapsedSeconds = 0
	task.ClearPauseMetadata()
	task.CreatedAt = now
	task.UpdatedAt = now
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return task.Clone(), nil
}

// Get returns a copy of the task.
func (s *Service) Get(ctx context.Context, taskID string) (*model.Task, error) {
	defer s.lockTask(taskID)()
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// List returns copies of all known tasks. Each task is cloned under
// its transition lock so a concurrent tick cannot tear the copy.
func (s *Service) List(ctx context.Context) ([]*model.Task, error) {
	all, err := s.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Task, 0, len(all))
	for _, task := range all {
		unlock := s.lockTask(task.ID)
		out = append(out, task.Clone())
		unlock()
	}
	return out, nil
}

// Start moves a task from NotStarted to InProgress, opens a time-log
// session and begins elapsed-time accumulation.
func (s *Service) Start(ctx context.Context, taskID string) (task *model.Task, err error) {
	defer s.lockTask(taskID)()
	ctx, span := tracing.StartSpan(ctx, "tracker.start", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"task.id": taskID})

	task, err = s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.StatusNotStarted {
		return nil, NewInvalidTransitionError(taskID, task.Status, EventStart)
	}

	now := s.clock.Now()
	task.Status = model.StatusInProgress
	task.UpdatedAt = now
	if err = s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if _, lErr := s.recorder.OpenSession(ctx, taskID, now); lErr != nil {
		log.Printf("tracker: failed to open time-log session for task %v: %v", taskID, lErr)
	}
	s.timer.StartAccumulation(taskID, s.onTick)
	return task.Clone(), nil
}

// Pause suspends an InProgress task. A non-empty reason is required;
// when requiresApproval is set the pause additionally records the
// approval request and hands the task to the escalation coordinator.
func (s *Service) Pause(ctx context.Context, taskID, reason string, requiresApproval bool) (task *model.Task, err error) {
	defer s.lockTask(taskID)()
	ctx, span := tracing.StartSpan(ctx, "tracker.pause", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"task.id": taskID})

	task, err = s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.StatusInProgress {
		return nil, NewInvalidTransitionError(taskID, task.Status, EventPause)
	}
	// Validate before any mutation so a rejected pause leaves the task
	// unchanged.
	if reason == "" {
		return nil, ErrMissingPauseReason
	}

	now := s.clock.Now()
	task.Status = model.StatusPaused
	task.PauseReason = reason
	task.RequiresCustomerApproval = requiresApproval
	if requiresApproval {
		at := now
		task.ApprovalRequestedAt = &at
		task.AwaitingCustomerApproval = true
	}
	task.UpdatedAt = now
	if err = s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	s.timer.StopAccumulation(taskID)
	if requiresApproval && s.escalation != nil {
		s.escalation.OnPause(ctx, task.Clone(), reason)
	}
	return task.Clone(), nil
}

// Resume returns a Paused task to InProgress, clearing all pause
// metadata and disarming any pending approval timeout.
func (s *Service) Resume(ctx context.Context, taskID string) (task *model.Task, err error) {
	defer s.lockTask(taskID)()
	ctx, span := tracing.StartSpan(ctx, "tracker.resume", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"task.id": taskID})

	task, err = s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.StatusPaused {
		return nil, NewInvalidTransitionError(taskID, task.Status, EventResume)
	}

	task.Status = model.StatusInProgress
	task.ClearPauseMetadata()
	task.UpdatedAt = s.clock.Now()
	if err = s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if s.escalation != nil {
		s.escalation.OnExit(taskID)
	}
	s.timer.StartAccumulation(taskID, s.onTick)
	return task.Clone(), nil
}

// Complete finishes a task from InProgress or Paused. The time-log
// session closes with the accumulated in-progress seconds; paused time
// is never attributed.
func (s *Service) Complete(ctx context.Context, taskID string) (task *model.Task, err error) {
	defer s.lockTask(taskID)()
	ctx, span := tracing.StartSpan(ctx, "tracker.complete", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"task.id": taskID})

	task, err = s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case model.StatusInProgress:
		s.timer.StopAccumulation(taskID)
	case model.StatusPaused:
		if s.escalation != nil {
			s.escalation.OnExit(taskID)
		}
		task.ClearPauseMetadata()
	default:
		return nil, NewInvalidTransitionError(taskID, task.Status, EventComplete)
	}

	now := s.clock.Now()
	task.Status = model.StatusCompleted
	task.UpdatedAt = now
	if err = s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if _, lErr := s.recorder.CloseSession(ctx, taskID, now, task.ElapsedSeconds); lErr != nil {
		log.Printf("tracker: failed to close time-log session for task %v: %v", taskID, lErr)
	}
	return task.Clone(), nil
}

// ResolveExpiry performs the race-safe state re-check on approval
// timeout expiry. requestedAt identifies the pause the timeout was
// armed for; the expiry is honoured only when the task is still paused
// awaiting approval for that same pause, in which case the awaiting
// flag is cleared and (task, true) is returned. Anything else, a later
// approval pause included, marks the expiry stale and returns
// (nil, false).
func (s *Service) ResolveExpiry(ctx context.Context, taskID string, requestedAt time.Time) (*model.Task, bool, error) {
	defer s.lockTask(taskID)()
	task, err := s.tasks.Load(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if task == nil || task.Status != model.StatusPaused || !task.AwaitingCustomerApproval {
		return nil, false, nil
	}
	if task.ApprovalRequestedAt == nil || !task.ApprovalRequestedAt.Equal(requestedAt) {
		return nil, false, nil
	}
	task.AwaitingCustomerApproval = false
	task.UpdatedAt = s.clock.Now()
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, false, fmt.Errorf("failed to save task: %w", err)
	}
	return task.Clone(), true, nil
}

// Restore re-attaches in-memory timers after a process restart:
// accumulation for InProgress tasks and the remaining approval window
// for paused tasks still awaiting a customer response.
func (s *Service) Restore(ctx context.Context) error {
	all, err := s.tasks.List(ctx)
	if err != nil {
		return err
	}
	for _, task := range all {
		switch {
		case task.Status == model.StatusInProgress:
			s.timer.StartAccumulation(task.ID, s.onTick)
		case task.Status == model.StatusPaused && task.AwaitingCustomerApproval:
			if s.escalation != nil {
				s.escalation.OnRestore(ctx, task.Clone())
			}
		}
	}
	return nil
}

// onTick increments elapsed time by one second. It runs under the task
// lock and re-checks status, so a tick racing a transition away from
// InProgress is a no-op and elapsed time never moves outside that
// state.
func (s *Service) onTick(taskID string) {
	defer s.lockTask(taskID)()
	ctx := context.Background()
	task, err := s.tasks.Load(ctx, taskID)
	if err != nil || task == nil {
		return
	}
	if task.Status != model.StatusInProgress {
		return
	}
	task.ElapsedSeconds++
	task.UpdatedAt = s.clock.Now()
	if err := s.tasks.Save(ctx, task); err != nil {
		log.Printf("tracker: failed to persist elapsed time for task %v: %v", taskID, err)
	}
}
