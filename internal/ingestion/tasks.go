package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Task is one background job's lifecycle record.
type Task struct {
	ID          string         `json:"task_id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// terminal reports whether the task has finished either way.
func (t *Task) terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// TaskCounts breaks down tasks by status.
type TaskCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ErrTaskNotFound reports an unknown task ID.
var ErrTaskNotFound = fmt.Errorf("task not found")

// TaskManager runs long ingestion jobs in the background and tracks
// their lifecycle. Terminated tasks are cleanable after a retention
// window.
type TaskManager struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*Task
	paused bool
	held   []heldTask
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// heldTask is a task created while the queue is paused, waiting for
// Resume.
type heldTask struct {
	task *Task
	run  func(ctx context.Context) (any, error)
}

// NewTaskManager creates a task manager. Tasks run until Shutdown
// cancels their shared context.
func NewTaskManager(logger *slog.Logger) *TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskManager{
		logger: logger,
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Create registers a task and starts it in the background, returning
// its ID immediately. While the queue is paused the task stays pending
// until Resume.
func (m *TaskManager) Create(kind string, metadata map[string]any, run func(ctx context.Context) (any, error)) string {
	task := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    TaskPending,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	if m.paused {
		m.held = append(m.held, heldTask{task: task, run: run})
		m.mu.Unlock()
		return task.ID
	}
	m.mu.Unlock()

	m.launch(task, run)
	return task.ID
}

// launch runs one task to completion in the background.
func (m *TaskManager) launch(task *Task, run func(ctx context.Context) (any, error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		now := time.Now().UTC()
		m.mu.Lock()
		task.Status = TaskRunning
		task.StartedAt = &now
		m.mu.Unlock()

		result, err := run(m.ctx)

		done := time.Now().UTC()
		m.mu.Lock()
		task.CompletedAt = &done
		if err != nil {
			task.Status = TaskFailed
			task.Error = err.Error()
		} else {
			task.Status = TaskCompleted
			task.Result = result
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Error("background task failed",
				"task_id", task.ID,
				"kind", task.Kind,
				"error", err)
		} else {
			m.logger.Info("background task completed",
				"task_id", task.ID,
				"kind", task.Kind,
				"duration", done.Sub(now))
		}
	}()
}

// Pause holds newly created tasks in the pending state. Tasks already
// running are unaffected.
func (m *TaskManager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume launches every held task and lets new ones start immediately
// again.
func (m *TaskManager) Resume() {
	m.mu.Lock()
	m.paused = false
	held := m.held
	m.held = nil
	m.mu.Unlock()

	for _, h := range held {
		m.launch(h.task, h.run)
	}
	if len(held) > 0 {
		m.logger.Info("resumed held tasks", "count", len(held))
	}
}

// Clear drops every held task, marking each failed, and returns how
// many were dropped.
func (m *TaskManager) Clear() int {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range m.held {
		h.task.Status = TaskFailed
		h.task.Error = "cleared before start"
		h.task.CompletedAt = &now
	}
	cleared := len(m.held)
	m.held = nil
	if cleared > 0 {
		m.logger.Info("cleared held tasks", "count", cleared)
	}
	return cleared
}

// Get returns a copy of one task's record.
func (m *TaskManager) Get(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *task, nil
}

// List returns every task newest first plus counts by status.
func (m *TaskManager) List() ([]Task, TaskCounts) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.tasks))
	var counts TaskCounts
	for _, t := range m.tasks {
		out = append(out, *t)
		switch t.Status {
		case TaskPending:
			counts.Pending++
		case TaskRunning:
			counts.Running++
		case TaskCompleted:
			counts.Completed++
		case TaskFailed:
			counts.Failed++
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, counts
}

// Cleanup removes terminated tasks older than maxAge and returns how
// many were removed. Running tasks are never removed.
func (m *TaskManager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.tasks {
		if t.terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("cleaned up terminated tasks", "removed", removed)
	}
	return removed
}

// Shutdown cancels all running tasks and waits for them to return.
// Committed stage outputs are not rolled back; re-ingestion is the
// recovery path.
func (m *TaskManager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
