package taskengine

import (
	"time"

	"github.com/Automobile-System/taskengine/internal/clock"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/dao"
	"github.com/Automobile-System/taskengine/service/messaging"
	"github.com/Automobile-System/taskengine/service/notification"
	"github.com/Automobile-System/taskengine/tracing"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithClock injects the time source; tests use clock.NewMock for
// deterministic accumulation and timeouts.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithApprovalWindow overrides the customer approval window.
func WithApprovalWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.config.Approval.Timeout = d.String()
		}
	}
}

// WithTaskDAO sets the task repository implementation.
func WithTaskDAO(tasks dao.Service[string, model.Task]) Option {
	return func(s *Service) { s.tasks = tasks }
}

// WithTimeLogDAO sets the time-log store implementation.
func WithTimeLogDAO(logs dao.Service[string, model.TimeLogEntry]) Option {
	return func(s *Service) { s.logs = logs }
}

// WithNoticeQueue sets the notification notice queue.
func WithNoticeQueue(queue messaging.Queue[notification.Notice]) Option {
	return func(s *Service) { s.notices = queue }
}

// WithGateway sets the notification gateway implementation.
func WithGateway(gateway notification.Gateway) Option {
	return func(s *Service) { s.gateway = gateway }
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty
// the stdout exporter is used. Safe to call multiple times: the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}
