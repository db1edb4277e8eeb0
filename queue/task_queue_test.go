package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jupark12/contract-extract/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileQueue(t *testing.T) (*TaskQueue, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := NewFilePersister(dir, nil)
	require.NoError(t, err)
	return NewTaskQueue(p, nil), dir
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	q, dir := newFileQueue(t)

	task, err := q.EnqueueTask(ctx, []string{"a.pdf", "b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.FileExists(t, filepath.Join(dir, task.ID+".json"))

	got, err := q.DequeueTask(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Equal(t, "worker-1", got.ProcessingNode)

	require.NoError(t, q.UpdateProgress(ctx, task.ID, 40))
	current, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, current.Progress)

	result := models.JobResult{ProcessedFiles: 2, TotalFiles: 2, DownloadURL: "/api/download/" + task.ID}
	require.NoError(t, q.CompleteTask(ctx, task.ID, "out.xlsx", result))

	done, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, &result, done.Result)
	assert.Len(t, q.CompletedTasks(), 1)
	assert.Empty(t, q.ProcessingTasks())
}

func TestDequeueIsFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewTaskQueue(nil, nil)

	first, _ := q.EnqueueTask(ctx, []string{"1.pdf"})
	second, _ := q.EnqueueTask(ctx, []string{"2.pdf"})
	assert.Len(t, q.PendingTasks(), 2)

	got, err := q.DequeueTask(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	got, err = q.DequeueTask(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = q.DequeueTask(ctx, "w")
	assert.ErrorIs(t, err, ErrNoPendingTasks)
}

func TestFailTask(t *testing.T) {
	ctx := context.Background()
	q := NewTaskQueue(nil, nil)
	task, _ := q.EnqueueTask(ctx, []string{"a.pdf"})

	assert.Error(t, q.FailTask(ctx, task.ID, "not yet processing"))

	_, err := q.DequeueTask(ctx, "w")
	require.NoError(t, err)
	require.NoError(t, q.FailTask(ctx, task.ID, "All PDFs failed during extraction"))

	failed, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "All PDFs failed during extraction", failed.ErrorMessage)
	assert.Len(t, q.FailedTasks(), 1)
}

func TestGetTaskNotFound(t *testing.T) {
	_, err := NewTaskQueue(nil, nil).GetTask("missing")
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	q := NewTaskQueue(nil, nil)
	task, _ := q.EnqueueTask(ctx, []string{"a.pdf"})

	task.SourceFiles[0] = "mutated.pdf"
	task.Status = models.StatusFailed

	got, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, got.SourceFiles)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestRemoveTaskOnlyWhenTerminal(t *testing.T) {
	ctx := context.Background()
	q, dir := newFileQueue(t)
	task, _ := q.EnqueueTask(ctx, []string{"a.pdf"})

	_, err := q.RemoveTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskActive)

	q.DequeueTask(ctx, "w")
	_, err = q.RemoveTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskActive)

	require.NoError(t, q.CompleteTask(ctx, task.ID, "out.xlsx", models.JobResult{ProcessedFiles: 1, TotalFiles: 1}))
	removed, err := q.RemoveTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "out.xlsx", removed.OutputFile)

	_, err = q.GetTask(task.ID)
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
	assert.NoFileExists(t, filepath.Join(dir, task.ID+".json"))

	_, err = q.RemoveTask(ctx, task.ID)
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestLoadTasksRequeuesInterruptedWork(t *testing.T) {
	ctx := context.Background()
	q, dir := newFileQueue(t)

	failed, _ := q.EnqueueTask(ctx, []string{"f.pdf"})
	interrupted, _ := q.EnqueueTask(ctx, []string{"i.pdf"})
	done, _ := q.EnqueueTask(ctx, []string{"d.pdf"})
	q.DequeueTask(ctx, "w")
	q.DequeueTask(ctx, "w")
	q.DequeueTask(ctx, "w")
	require.NoError(t, q.CompleteTask(ctx, done.ID, "d.xlsx", models.JobResult{ProcessedFiles: 1, TotalFiles: 1}))
	require.NoError(t, q.FailTask(ctx, failed.ID, "boom"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	p, err := NewFilePersister(dir, nil)
	require.NoError(t, err)
	restored := NewTaskQueue(p, nil)
	require.NoError(t, restored.LoadTasks(ctx))

	assert.Len(t, restored.AllTasks(), 3)
	requeued := restored.PendingTasks()
	require.Len(t, requeued, 1)
	assert.Equal(t, interrupted.ID, requeued[0].ID)
	assert.Equal(t, models.StatusPending, requeued[0].Status)
	assert.Len(t, restored.CompletedTasks(), 1)
	assert.Len(t, restored.FailedTasks(), 1)
}

func TestUpdatesAreBroadcast(t *testing.T) {
	ctx := context.Background()
	q := NewTaskQueue(nil, nil)

	task, _ := q.EnqueueTask(ctx, []string{"a.pdf"})
	q.DequeueTask(ctx, "w")

	first := <-q.Updates()
	second := <-q.Updates()
	assert.Equal(t, task.ID, first.ID)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, models.StatusProcessing, second.Status)
}

func TestRequeueTaskReturnsToHeadOfQueue(t *testing.T) {
	ctx := context.Background()
	q, dir := newFileQueue(t)

	first, _ := q.EnqueueTask(ctx, []string{"a.pdf"})
	second, _ := q.EnqueueTask(ctx, []string{"b.pdf"})
	_, err := q.DequeueTask(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, q.UpdateProgress(ctx, first.ID, 40))

	require.NoError(t, q.RequeueTask(ctx, first.ID))

	pending := q.PendingTasks()
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, 0, pending[0].Progress)
	assert.Empty(t, pending[0].ProcessingNode)
	assert.Empty(t, q.ProcessingTasks())

	p, err := NewFilePersister(dir, nil)
	require.NoError(t, err)
	restored := NewTaskQueue(p, nil)
	require.NoError(t, restored.LoadTasks(ctx))
	got, err := restored.GetTask(first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	assert.Error(t, q.RequeueTask(ctx, "missing"))
}

func TestLoadTasksKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	q, dir := newFileQueue(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 8; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		q.now = func() time.Time { return at }
		task, err := q.EnqueueTask(ctx, []string{fmt.Sprintf("%d.pdf", i)})
		require.NoError(t, err)
		want = append(want, task.ID)
	}

	p, err := NewFilePersister(dir, nil)
	require.NoError(t, err)
	restored := NewTaskQueue(p, nil)
	require.NoError(t, restored.LoadTasks(ctx))

	var got []string
	for _, task := range restored.PendingTasks() {
		got = append(got, task.ID)
	}
	assert.Equal(t, want, got)
}
