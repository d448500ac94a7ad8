// Package timelog records immutable work-session entries consumed by
// reporting. A session opens when a task starts and closes when it
// completes; remarks are the only post-close mutation.
package timelog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Automobile-System/taskengine/internal/idgen"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/dao"
)

var (
	// ErrSessionOpen is returned when opening a session for a task that
	// already has one open.
	ErrSessionOpen = errors.New("timelog: session already open")

	// ErrNoOpenSession is returned when closing a session for a task
	// without one.
	ErrNoOpenSession = errors.New("timelog: no open session")

	// ErrEntryOpen is returned when annotating an entry that has not
	// been closed yet.
	ErrEntryOpen = errors.New("timelog: entry still open")
)

// Service is the time-log recorder.
type Service struct {
	entries dao.Service[string, model.TimeLogEntry]

	mu   sync.Mutex
	open map[string]string // taskID -> open entry id
}

// New creates a recorder backed by the supplied entry store.
func New(entries dao.Service[string, model.TimeLogEntry]) *Service {
	return &Service{
		entries: entries,
		open:    make(map[string]string),
	}
}

// OpenSession creates a provisional entry for taskID starting at start.
func (s *Service) OpenSession(ctx context.Context, taskID string, start time.Time) (*model.TimeLogEntry, error) {
	if taskID == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[taskID]; ok {
		return nil, ErrSessionOpen
	}
	entry := &model.TimeLogEntry{
		ID:        idgen.New(),
		TaskID:    taskID,
		StartTime: start,
		CreatedAt: start,
	}
	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save time-log entry: %w", err)
	}
	s.open[taskID] = entry.ID
	return entry.Clone(), nil
}

// CloseSession finalises the open entry for taskID. The duration is
// supplied by the caller and reflects only accumulated in-progress
// seconds, never paused time.
func (s *Service) CloseSession(ctx context.Context, taskID string, end time.Time, durationSeconds int64) (*model.TimeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.open[taskID]
	if !ok {
		return nil, ErrNoOpenSession
	}
	entry, err := s.entries.Load(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		delete(s.open, taskID)
		return nil, dao.ErrNotFound
	}
	entry.EndTime = &end
	entry.DurationSeconds = durationSeconds
	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save time-log entry: %w", err)
	}
	delete(s.open, taskID)
	return entry.Clone(), nil
}

// Annotate updates the remarks of an existing, closed entry, the sole
// supported mutation after close.
func (s *Service) Annotate(ctx context.Context, entryID, remarks string) (*model.TimeLogEntry, error) {
	if entryID == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.entries.Load(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, dao.ErrNotFound
	}
	if !entry.Closed() {
		return nil, ErrEntryOpen
	}
	entry.Remarks = remarks
	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save time-log entry: %w", err)
	}
	return entry.Clone(), nil
}

// Entries returns copies of all entries recorded for taskID. The
// recorder mutex serializes the clones against CloseSession and
// Annotate, which mutate stored entries in place.
func (s *Service) Entries(ctx context.Context, taskID string) ([]*model.TimeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.TimeLogEntry
	for _, entry := range all {
		if entry.TaskID == taskID {
			out = append(out, entry.Clone())
		}
	}
	return out, nil
}

// HasOpenSession reports whether taskID currently has an open entry.
func (s *Service) HasOpenSession(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[taskID]
	return ok
}
