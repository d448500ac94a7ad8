package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Automobile-System/taskengine/internal/clock"
	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/dao/store"
	"github.com/Automobile-System/taskengine/service/timelog"
	"github.com/Automobile-System/taskengine/service/timer"
)

type fixture struct {
	service  *Service
	mock     *clock.Mock
	timers   *timer.Service
	recorder *timelog.Service
}

func newFixture(options ...Option) *fixture {
	mock := clock.NewMock()
	tasks := store.NewMemoryStore[string, model.Task](func(t *model.Task) string { return t.ID })
	entries := store.NewMemoryStore[string, model.TimeLogEntry](func(e *model.TimeLogEntry) string { return e.ID })
	timers := timer.New(mock)
	recorder := timelog.New(entries)
	return &fixture{
		service:  New(tasks, timers, recorder, mock, options...),
		mock:     mock,
		timers:   timers,
		recorder: recorder,
	}
}

func (f *fixture) createTask(t *testing.T) *model.Task {
	task, err := f.service.Create(context.Background(), &model.Task{
		Title:              "Replace brake pads",
		VehicleDescription: "Toyota Corolla 2019",
		PlateNumber:        "CAB-1234",
	})
	require.NoError(t, err)
	return task
}

func TestCreateStartsNotStarted(t *testing.T) {
	f := newFixture()
	task := f.createTask(t)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.StatusNotStarted, task.Status)
	assert.Equal(t, int64(0), task.ElapsedSeconds)
}

func TestStartBeginsAccumulationAndSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	started, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, started.Status)
	assert.Equal(t, 1, f.timers.ActiveAccumulators())
	assert.True(t, f.recorder.HasOpenSession(task.ID))
}

func TestElapsedSecondsAfterNinetySimulatedSeconds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)

	f.mock.Advance(90 * time.Second)
	time.Sleep(20 * time.Millisecond)

	current, err := f.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), current.ElapsedSeconds)
}

func TestElapsedSecondsFrozenWhilePaused(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	f.mock.Advance(30 * time.Second)
	time.Sleep(20 * time.Millisecond)

	_, err = f.service.Pause(ctx, task.ID, "waiting for parts", false)
	require.NoError(t, err)
	assert.Equal(t, 0, f.timers.ActiveAccumulators())

	f.mock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)

	current, err := f.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), current.ElapsedSeconds)

	// Accumulation resumes where it left off.
	_, err = f.service.Resume(ctx, task.ID)
	require.NoError(t, err)
	f.mock.Advance(15 * time.Second)
	time.Sleep(20 * time.Millisecond)

	current, err = f.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), current.ElapsedSeconds)
}

func TestPauseRequiresReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)

	_, err = f.service.Pause(ctx, task.ID, "", false)
	assert.ErrorIs(t, err, ErrMissingPauseReason)

	// Rejected before any state mutation.
	current, err := f.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, current.Status)
	assert.Equal(t, 1, f.timers.ActiveAccumulators())
}

func TestPauseRecordsMetadata(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)

	paused, err := f.service.Pause(ctx, task.ID, "customer sign-off needed", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, paused.Status)
	assert.Equal(t, "customer sign-off needed", paused.PauseReason)
	assert.True(t, paused.RequiresCustomerApproval)
	assert.True(t, paused.AwaitingCustomerApproval)
	require.NotNil(t, paused.ApprovalRequestedAt)
	assert.Equal(t, f.mock.Now(), *paused.ApprovalRequestedAt)
}

func TestResumeClearsPauseMetadata(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	_, err = f.service.Pause(ctx, task.ID, "first pause", true)
	require.NoError(t, err)

	resumed, err := f.service.Resume(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, resumed.Status)
	assert.Empty(t, resumed.PauseReason)
	assert.False(t, resumed.RequiresCustomerApproval)
	assert.False(t, resumed.AwaitingCustomerApproval)
	assert.Nil(t, resumed.ApprovalRequestedAt)

	// A second pause never shows a stale reason.
	paused, err := f.service.Pause(ctx, task.ID, "second pause", false)
	require.NoError(t, err)
	assert.Equal(t, "second pause", paused.PauseReason)
	assert.False(t, paused.AwaitingCustomerApproval)
	assert.Nil(t, paused.ApprovalRequestedAt)
}

func TestCompleteFromInProgressClosesSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	f.mock.Advance(120 * time.Second)
	time.Sleep(20 * time.Millisecond)

	completed, err := f.service.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	assert.Equal(t, 0, f.timers.ActiveAccumulators())

	entries, err := f.recorder.Entries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Closed())
	assert.Equal(t, int64(120), entries[0].DurationSeconds)
}

func TestCompleteFromPausedExcludesPausedTime(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	f.mock.Advance(60 * time.Second)
	time.Sleep(20 * time.Millisecond)

	_, err = f.service.Pause(ctx, task.ID, "waiting for approval", true)
	require.NoError(t, err)
	f.mock.Advance(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)

	completed, err := f.service.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	assert.False(t, completed.AwaitingCustomerApproval)
	assert.Empty(t, completed.PauseReason)

	entries, err := f.recorder.Entries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// Duration reflects only accumulated in-progress time.
	assert.Equal(t, int64(60), entries[0].DurationSeconds)
}

func TestElapsedSecondsNeverDecreases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 5; i++ {
		f.mock.Advance(10 * time.Second)
		time.Sleep(10 * time.Millisecond)
		current, err := f.service.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, current.ElapsedSeconds, last)
		last = current.ElapsedSeconds
	}
	assert.Equal(t, int64(50), last)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()

	events := map[Event]func(s *Service, id string) error{
		EventStart:    func(s *Service, id string) error { _, err := s.Start(ctx, id); return err },
		EventPause:    func(s *Service, id string) error { _, err := s.Pause(ctx, id, "reason", false); return err },
		EventResume:   func(s *Service, id string) error { _, err := s.Resume(ctx, id); return err },
		EventComplete: func(s *Service, id string) error { _, err := s.Complete(ctx, id); return err },
	}

	drive := map[model.Status]func(t *testing.T, f *fixture, id string){
		model.StatusNotStarted: func(*testing.T, *fixture, string) {},
		model.StatusInProgress: func(t *testing.T, f *fixture, id string) {
			_, err := f.service.Start(ctx, id)
			require.NoError(t, err)
		},
		model.StatusPaused: func(t *testing.T, f *fixture, id string) {
			_, err := f.service.Start(ctx, id)
			require.NoError(t, err)
			_, err = f.service.Pause(ctx, id, "reason", false)
			require.NoError(t, err)
		},
		model.StatusCompleted: func(t *testing.T, f *fixture, id string) {
			_, err := f.service.Start(ctx, id)
			require.NoError(t, err)
			_, err = f.service.Complete(ctx, id)
			require.NoError(t, err)
		},
	}

	testCases := []struct {
		state  model.Status
		events []Event
	}{
		{state: model.StatusNotStarted, events: []Event{EventPause, EventResume, EventComplete}},
		{state: model.StatusInProgress, events: []Event{EventStart, EventResume}},
		{state: model.StatusPaused, events: []Event{EventStart, EventPause}},
		{state: model.StatusCompleted, events: []Event{EventStart, EventPause, EventResume, EventComplete}},
	}

	for _, tc := range testCases {
		for _, event := range tc.events {
			t.Run(string(tc.state)+"_"+string(event), func(t *testing.T) {
				f := newFixture()
				task := f.createTask(t)
				drive[tc.state](t, f, task.ID)

				before, err := f.service.Get(ctx, task.ID)
				require.NoError(t, err)

				err = events[event](f.service, task.ID)
				require.Error(t, err)

				var invalid *InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tc.state, invalid.Current)
				assert.Equal(t, event, invalid.Event)

				// The task is left unchanged so the caller can reconcile.
				after, err := f.service.Get(ctx, task.ID)
				require.NoError(t, err)
				assert.Equal(t, before, after)
			})
		}
	}
}

func TestUnknownTaskReturnsNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.service.Start(context.Background(), "missing")
	assert.Error(t, err)
}

func TestResolveExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	paused, err := f.service.Pause(ctx, task.ID, "needs approval", true)
	require.NoError(t, err)
	require.NotNil(t, paused.ApprovalRequestedAt)

	resolved, unresolved, err := f.service.ResolveExpiry(ctx, task.ID, *paused.ApprovalRequestedAt)
	require.NoError(t, err)
	assert.True(t, unresolved)
	assert.False(t, resolved.AwaitingCustomerApproval)
	assert.Equal(t, model.StatusPaused, resolved.Status)

	// A second expiry for the same pause is stale.
	_, unresolved, err = f.service.ResolveExpiry(ctx, task.ID, *paused.ApprovalRequestedAt)
	require.NoError(t, err)
	assert.False(t, unresolved)
}

func TestResolveExpiryStaleAfterResume(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	paused, err := f.service.Pause(ctx, task.ID, "needs approval", true)
	require.NoError(t, err)
	_, err = f.service.Resume(ctx, task.ID)
	require.NoError(t, err)

	_, unresolved, err := f.service.ResolveExpiry(ctx, task.ID, *paused.ApprovalRequestedAt)
	require.NoError(t, err)
	assert.False(t, unresolved)
}

func TestResolveExpiryIgnoresEarlierPause(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)
	first, err := f.service.Pause(ctx, task.ID, "first approval", true)
	require.NoError(t, err)
	_, err = f.service.Resume(ctx, task.ID)
	require.NoError(t, err)

	f.mock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)

	second, err := f.service.Pause(ctx, task.ID, "second approval", true)
	require.NoError(t, err)
	require.NotEqual(t, *first.ApprovalRequestedAt, *second.ApprovalRequestedAt)

	// A timeout armed for the first pause must not consume the second.
	_, unresolved, err := f.service.ResolveExpiry(ctx, task.ID, *first.ApprovalRequestedAt)
	require.NoError(t, err)
	assert.False(t, unresolved)

	current, err := f.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, current.AwaitingCustomerApproval)

	resolved, unresolved, err := f.service.ResolveExpiry(ctx, task.ID, *second.ApprovalRequestedAt)
	require.NoError(t, err)
	assert.True(t, unresolved)
	assert.False(t, resolved.AwaitingCustomerApproval)
}

func TestListDuringAccumulation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	task := f.createTask(t)

	_, err := f.service.Start(ctx, task.ID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			f.mock.Advance(time.Second)
		}
	}()

	// Read the task list while the tick path mutates elapsed time.
	for listing := true; listing; {
		select {
		case <-done:
			listing = false
		default:
		}
		tasks, err := f.service.List(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.LessOrEqual(t, tasks[0].ElapsedSeconds, int64(50))
	}

	time.Sleep(20 * time.Millisecond)
	current, err := f.service.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), current.ElapsedSeconds)
}

func TestRestoreReattachesAccumulation(t *testing.T) {
	mock := clock.NewMock()
	tasks := store.NewMemoryStore[string, model.Task](func(t *model.Task) string { return t.ID })
	entries := store.NewMemoryStore[string, model.TimeLogEntry](func(e *model.TimeLogEntry) string { return e.ID })

	// Simulate a task persisted mid-progress by a previous process.
	now := mock.Now()
	require.NoError(t, tasks.Save(context.Background(), &model.Task{
		ID:             "task-1",
		Title:          "Oil change",
		Status:         model.StatusInProgress,
		ElapsedSeconds: 40,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))

	timers := timer.New(mock)
	service := New(tasks, timers, timelog.New(entries), mock)
	require.NoError(t, service.Restore(context.Background()))
	assert.Equal(t, 1, timers.ActiveAccumulators())

	mock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)

	current, err := service.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), current.ElapsedSeconds)
}
