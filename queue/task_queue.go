package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

var (
	// ErrNoPendingTasks is returned by DequeueTask when there is nothing to do.
	ErrNoPendingTasks = errors.New("no pending tasks available")
	// ErrTaskActive is returned when removing a task that has not finished.
	ErrTaskActive = errors.New("cannot cleanup a running task")
)

// TaskQueue holds extraction tasks: a FIFO of pending tasks plus one map per
// state. Every transition is persisted and announced on the update channel.
type TaskQueue struct {
	mu              sync.RWMutex
	pendingTasks    []*models.Task
	processingTasks map[string]*models.Task
	completedTasks  map[string]*models.Task
	failedTasks     map[string]*models.Task
	tasksByID       map[string]*models.Task
	persister       Persister
	updates         chan models.Task
	log             *zap.Logger
	now             func() time.Time
}

func NewTaskQueue(persister Persister, log *zap.Logger) *TaskQueue {
	if persister == nil {
		persister = MemoryPersister{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskQueue{
		pendingTasks:    make([]*models.Task, 0),
		processingTasks: make(map[string]*models.Task),
		completedTasks:  make(map[string]*models.Task),
		failedTasks:     make(map[string]*models.Task),
		tasksByID:       make(map[string]*models.Task),
		persister:       persister,
		updates:         make(chan models.Task, 100),
		log:             log,
		now:             time.Now,
	}
}

// EnqueueTask registers a new pending task over the given source files.
func (q *TaskQueue) EnqueueTask(ctx context.Context, sourceFiles []string) (models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	task := &models.Task{
		ID:          uuid.New().String(),
		SourceFiles: append([]string(nil), sourceFiles...),
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.persister.Save(ctx, task); err != nil {
		return models.Task{}, fmt.Errorf("failed to persist task: %w", err)
	}

	q.pendingTasks = append(q.pendingTasks, task)
	q.tasksByID[task.ID] = task
	q.publish(task)

	q.log.Info("task enqueued", zap.String("task_id", task.ID), zap.Int("file_count", len(sourceFiles)))
	return snapshot(task), nil
}

// DequeueTask takes the oldest pending task and marks it processing.
func (q *TaskQueue) DequeueTask(ctx context.Context, workerID string) (models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pendingTasks) == 0 {
		return models.Task{}, ErrNoPendingTasks
	}

	task := q.pendingTasks[0]
	q.pendingTasks = q.pendingTasks[1:]

	now := q.now()
	task.Status = models.StatusProcessing
	task.StartedAt = now
	task.UpdatedAt = now
	task.ProcessingNode = workerID
	q.processingTasks[task.ID] = task

	if err := q.persister.Save(ctx, task); err != nil {
		q.log.Warn("failed to persist task status", zap.String("task_id", task.ID), zap.Error(err))
	}
	q.publish(task)

	return snapshot(task), nil
}

// UpdateProgress records the progress of a processing task.
func (q *TaskQueue) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.processingTasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found in processing queue", taskID)
	}

	task.Progress = min(max(progress, 0), 100)
	task.UpdatedAt = q.now()
	q.publish(task)
	return q.persister.Save(ctx, task)
}

// CompleteTask marks a processing task as completed with its result.
func (q *TaskQueue) CompleteTask(ctx context.Context, taskID string, outputFile string, result models.JobResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.processingTasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found in processing queue", taskID)
	}

	now := q.now()
	task.Status = models.StatusCompleted
	task.Progress = 100
	task.OutputFile = outputFile
	task.Result = &result
	task.CompletedAt = now
	task.UpdatedAt = now

	delete(q.processingTasks, taskID)
	q.completedTasks[taskID] = task
	q.publish(task)

	return q.persister.Save(ctx, task)
}

// FailTask marks a processing task as failed.
func (q *TaskQueue) FailTask(ctx context.Context, taskID string, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.processingTasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found in processing queue", taskID)
	}

	now := q.now()
	task.Status = models.StatusFailed
	task.Progress = 0
	task.ErrorMessage = errorMsg
	task.CompletedAt = now
	task.UpdatedAt = now

	delete(q.processingTasks, taskID)
	q.failedTasks[taskID] = task
	q.publish(task)

	return q.persister.Save(ctx, task)
}

// RequeueTask puts an interrupted processing task back at the head of the
// pending queue.
func (q *TaskQueue) RequeueTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.processingTasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found in processing queue", taskID)
	}

	task.Status = models.StatusPending
	task.Progress = 0
	task.ProcessingNode = ""
	task.StartedAt = time.Time{}
	task.UpdatedAt = q.now()

	delete(q.processingTasks, taskID)
	q.pendingTasks = append([]*models.Task{task}, q.pendingTasks...)
	q.publish(task)

	return q.persister.Save(ctx, task)
}

// GetTask returns a snapshot of the task, or models.ErrTaskNotFound.
func (q *TaskQueue) GetTask(taskID string) (models.Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, exists := q.tasksByID[taskID]
	if !exists {
		return models.Task{}, fmt.Errorf("task %s: %w", taskID, models.ErrTaskNotFound)
	}
	return snapshot(task), nil
}

// RemoveTask forgets a finished task. Pending and processing tasks return ErrTaskActive.
func (q *TaskQueue) RemoveTask(ctx context.Context, taskID string) (models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.tasksByID[taskID]
	if !exists {
		return models.Task{}, fmt.Errorf("task %s: %w", taskID, models.ErrTaskNotFound)
	}
	if !task.Status.IsTerminal() {
		return models.Task{}, ErrTaskActive
	}

	if err := q.persister.Delete(ctx, taskID); err != nil {
		return models.Task{}, err
	}
	delete(q.tasksByID, taskID)
	delete(q.completedTasks, taskID)
	delete(q.failedTasks, taskID)

	q.log.Info("task removed", zap.String("task_id", taskID))
	return snapshot(task), nil
}

// LoadTasks restores persisted tasks in creation order. Tasks caught
// mid-processing by a restart go back to the pending queue.
func (q *TaskQueue) LoadTasks(ctx context.Context) error {
	tasks, err := q.persister.LoadAll(ctx)
	if err != nil {
		return err
	}
	slices.SortStableFunc(tasks, func(a, b *models.Task) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range tasks {
		q.tasksByID[task.ID] = task

		switch task.Status {
		case models.StatusPending, models.StatusProcessing:
			task.Status = models.StatusPending
			task.Progress = 0
			task.ProcessingNode = ""
			q.pendingTasks = append(q.pendingTasks, task)
		case models.StatusCompleted:
			q.completedTasks[task.ID] = task
		case models.StatusFailed:
			q.failedTasks[task.ID] = task
		}
	}

	q.log.Info("loaded tasks", zap.Int("count", len(tasks)))
	return nil
}

// publish must be called with q.mu held. A full channel drops the update.
func (q *TaskQueue) publish(task *models.Task) {
	select {
	case q.updates <- snapshot(task):
	default:
		q.log.Debug("task update dropped", zap.String("task_id", task.ID))
	}
}

// Updates delivers a snapshot after every task transition.
func (q *TaskQueue) Updates() <-chan models.Task {
	return q.updates
}

func (q *TaskQueue) PendingTasks() []models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	tasks := make([]models.Task, len(q.pendingTasks))
	for i, task := range q.pendingTasks {
		tasks[i] = snapshot(task)
	}
	return tasks
}

func (q *TaskQueue) ProcessingTasks() []models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return snapshots(q.processingTasks)
}

func (q *TaskQueue) CompletedTasks() []models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return snapshots(q.completedTasks)
}

func (q *TaskQueue) FailedTasks() []models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return snapshots(q.failedTasks)
}

func (q *TaskQueue) AllTasks() []models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return snapshots(q.tasksByID)
}

func snapshots(m map[string]*models.Task) []models.Task {
	tasks := make([]models.Task, 0, len(m))
	for _, task := range m {
		tasks = append(tasks, snapshot(task))
	}
	return tasks
}

func snapshot(task *models.Task) models.Task {
	out := *task
	out.SourceFiles = append([]string(nil), task.SourceFiles...)
	if task.Result != nil {
		result := *task.Result
		out.Result = &result
	}
	return out
}
