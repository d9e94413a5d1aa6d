package ingestion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
)

func waitForStatus(t *testing.T, m *TaskManager, id, want string) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := m.Get(id)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", id, want)
	return Task{}
}

func TestTaskLifecycleCompleted(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	id := m.Create("batch_ingest", map[string]any{"bucket": "policy"}, func(ctx context.Context) (any, error) {
		return "done", nil
	})

	task := waitForStatus(t, m, id, TaskCompleted)
	assert.Equal(t, "batch_ingest", task.Kind)
	assert.Equal(t, "done", task.Result)
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.CompletedAt)
	assert.Empty(t, task.Error)
}

func TestTaskLifecycleFailed(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	id := m.Create("document_ingest", nil, func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("store unreachable")
	})

	task := waitForStatus(t, m, id, TaskFailed)
	assert.Equal(t, "store unreachable", task.Error)
	assert.Nil(t, task.Result)
}

func TestTaskPauseHoldsUntilResume(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	m.Pause()
	id := m.Create("queued_ingest", nil, func(ctx context.Context) (any, error) {
		return "done", nil
	})

	time.Sleep(50 * time.Millisecond)
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, task.Status)
	assert.Nil(t, task.StartedAt)

	m.Resume()
	task = waitForStatus(t, m, id, TaskCompleted)
	assert.Equal(t, "done", task.Result)
}

func TestTaskClearDropsHeld(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	m.Pause()
	held := m.Create("queued_ingest", nil, func(ctx context.Context) (any, error) {
		return nil, nil
	})

	assert.Equal(t, 1, m.Clear())

	task, err := m.Get(held)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, task.Status)
	assert.Equal(t, "cleared before start", task.Error)

	// cleared queue no longer holds anything; resume is a no-op
	m.Resume()
	id := m.Create("queued_ingest", nil, func(ctx context.Context) (any, error) {
		return "done", nil
	})
	waitForStatus(t, m, id, TaskCompleted)
}

func TestTaskGetUnknown(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskListCounts(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	release := make(chan struct{})
	running := m.Create("slow", nil, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	done := m.Create("fast", nil, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	waitForStatus(t, m, done, TaskCompleted)
	waitForStatus(t, m, running, TaskRunning)

	tasks, counts := m.List()
	assert.Len(t, tasks, 2)
	assert.Equal(t, 1, counts.Running)
	assert.Equal(t, 1, counts.Completed)

	close(release)
	waitForStatus(t, m, running, TaskCompleted)
}

func TestTaskCleanupRemovesOnlyOldTerminated(t *testing.T) {
	m := NewTaskManager(logging.Discard())
	defer m.Shutdown()

	release := make(chan struct{})
	running := m.Create("slow", nil, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	done := m.Create("fast", nil, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	waitForStatus(t, m, done, TaskCompleted)
	waitForStatus(t, m, running, TaskRunning)

	// Zero max age makes every terminated task stale immediately.
	removed := m.Cleanup(0)
	assert.Equal(t, 1, removed)

	_, err := m.Get(done)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = m.Get(running)
	assert.NoError(t, err)

	close(release)
	waitForStatus(t, m, running, TaskCompleted)
}

func TestTaskShutdownCancelsContext(t *testing.T) {
	m := NewTaskManager(logging.Discard())

	id := m.Create("cancellable", nil, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	waitForStatus(t, m, id, TaskRunning)

	m.Shutdown()
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, task.Status)
}
