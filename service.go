package taskengine

import (
	"context"
	"fmt"

	"github.com/viant/afs"

	"github.com/Automobile-System/taskengine/internal/clock"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/dao"
	"github.com/Automobile-System/taskengine/service/dao/store"
	tlfs "github.com/Automobile-System/taskengine/service/dao/timelog/fs"
	"github.com/Automobile-System/taskengine/service/escalation"
	"github.com/Automobile-System/taskengine/service/messaging"
	qfs "github.com/Automobile-System/taskengine/service/messaging/fs"
	qmemory "github.com/Automobile-System/taskengine/service/messaging/memory"
	"github.com/Automobile-System/taskengine/service/notification"
	nqueue "github.com/Automobile-System/taskengine/service/notification/queue"
	"github.com/Automobile-System/taskengine/service/timelog"
	"github.com/Automobile-System/taskengine/service/timer"
	"github.com/Automobile-System/taskengine/service/tracker"
)

// Service assembles the task execution & time tracking engine: the
// state machine, the timer service, the time-log recorder and the
// approval escalation coordinator, each replaceable through options.
type Service struct {
	config *Config
	clock  clock.Clock

	tasks   dao.Service[string, model.Task]
	logs    dao.Service[string, model.TimeLogEntry]
	notices messaging.Queue[notification.Notice]
	gateway notification.Gateway

	timers     *timer.Service
	recorder   *timelog.Service
	escalation *escalation.Service
	tracker    *tracker.Service
}

// New creates an engine with in-memory defaults and a 24h approval
// window unless configured otherwise.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		clock:  clock.System(),
	}
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureBaseSetup(); err != nil {
		return nil, err
	}

	s.timers = timer.New(s.clock)
	s.recorder = timelog.New(s.logs)
	s.escalation = escalation.New(s.timers, s.gateway,
		escalation.WithWindow(s.config.ApprovalWindow()),
		escalation.WithClock(s.clock))
	s.tracker = tracker.New(s.tasks, s.timers, s.recorder, s.clock,
		tracker.WithEscalation(s.escalation))
	s.escalation.SetResolver(s.tracker)
	return s, nil
}

func (s *Service) ensureBaseSetup() error {
	if s.tasks == nil {
		s.tasks = store.NewMemoryStore[string, model.Task](func(t *model.Task) string { return t.ID })
	}
	if s.logs == nil {
		if s.config.TimeLogs.Vendor == "fs" {
			logs, err := tlfs.New(s.config.TimeLogs.BasePath)
			if err != nil {
				return fmt.Errorf("failed to create fs time-log store: %w", err)
			}
			s.logs = logs
		} else {
			s.logs = store.NewMemoryStore[string, model.TimeLogEntry](func(e *model.TimeLogEntry) string { return e.ID })
		}
	}
	if s.notices == nil {
		if s.config.Notices.Vendor == string(messaging.VendorFs) {
			notices, err := qfs.NewQueue[notification.Notice](afs.New(), qfs.QueueConfig{
				BasePath:   s.config.Notices.BasePath,
				MaxRetries: qfs.DefaultConfig().MaxRetries,
			})
			if err != nil {
				return fmt.Errorf("failed to create fs notice queue: %w", err)
			}
			s.notices = notices
		} else {
			s.notices = qmemory.NewQueue[notification.Notice](qmemory.DefaultConfig())
		}
	}
	if s.gateway == nil {
		s.gateway = nqueue.New(s.notices, s.clock)
	}
	return nil
}

// Tracker exposes the task state machine.
func (s *Service) Tracker() *tracker.Service { return s.tracker }

// TimeLogs exposes the time-log recorder.
func (s *Service) TimeLogs() *timelog.Service { return s.recorder }

// Timers exposes the timer service, mainly for leak accounting.
func (s *Service) Timers() *timer.Service { return s.timers }

// Notices exposes the notification queue for delivery consumers.
func (s *Service) Notices() messaging.Queue[notification.Notice] { return s.notices }

// Restore re-arms in-memory timers from persisted task state after a
// process restart: accumulation for in-progress tasks and the
// remaining approval window for pauses still awaiting a customer.
func (s *Service) Restore(ctx context.Context) error {
	return s.tracker.Restore(ctx)
}

// Shutdown deterministically releases all accumulators and timeouts.
func (s *Service) Shutdown() {
	s.timers.Shutdown()
}
