package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jupark12/contract-extract/models"
	"github.com/jupark12/contract-extract/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeExtractor struct {
	failing map[string]bool
}

func (f fakeExtractor) Extract(ctx context.Context, path string) (models.ExtractedDocument, error) {
	name := filepath.Base(path)
	if f.failing[name] {
		return models.ExtractedDocument{FileName: name}, errors.New("no text found in " + name)
	}
	return models.ExtractedDocument{
		FileName:  name,
		Title:     "Contract " + name,
		Pages:     2,
		CharCount: 120,
		Excerpt:   "GeM contract for " + name,
		Fields: models.ContractFields{
			SectionContractData: {"Contract No": "GEMC-" + name, "Duration": "12"},
			SectionConsignee:    {"Contact": "9876543210", "GSTIN": "-"},
		},
	}, nil
}

func dequeue(t *testing.T, q *queue.TaskQueue, files ...string) models.Task {
	t.Helper()
	_, err := q.EnqueueTask(context.Background(), files)
	require.NoError(t, err)
	task, err := q.DequeueTask(context.Background(), "worker-1")
	require.NoError(t, err)
	return task
}

func TestRunTaskWritesWorkbook(t *testing.T) {
	out := t.TempDir()
	q := queue.NewTaskQueue(nil, nil)
	w := NewWorker("worker-1", q, out, WithExtractor(fakeExtractor{failing: map[string]bool{"bad.pdf": true}}))

	var notified []string
	w.SetNotifier(func(id string) { notified = append(notified, id) })

	task := dequeue(t, q, "/up/a.pdf", "/up/bad.pdf", "/up/b.pdf")
	w.RunTask(context.Background(), task)

	done, err := q.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, &models.JobResult{ProcessedFiles: 2, TotalFiles: 3, DownloadURL: "/api/download/" + task.ID}, done.Result)
	assert.Equal(t, filepath.Join(out, task.ID+".xlsx"), done.OutputFile)
	assert.NotEmpty(t, notified)

	f, err := excelize.OpenFile(done.OutputFile)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(contractSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, append([]string{"File Name"}, contractSheets[0].Headers...), rows[0])
	assert.Equal(t, []string{"a.pdf", "GEMC-a.pdf", "", "", "12"}, rows[1])
	assert.Equal(t, "b.pdf", rows[2][0])

	assert.Equal(t, []string{
		"Contract Data",
		"Organisation Details",
		"Buyer Details",
		"Financial Approval Details",
		"Paying Authority Details",
		"Consignee Details",
		"Service Provider Details",
		"Service Details",
		"Documents",
		"Failed Files",
	}, f.GetSheetList())

	consignees, err := f.GetRows("Consignee Details")
	require.NoError(t, err)
	require.Len(t, consignees, 3)
	assert.Equal(t, []string{"a.pdf", "9876543210"}, consignees[1])

	stats, err := f.GetRows(documentsSheet)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, []string{"a.pdf", "Contract a.pdf", "2", "120", "GeM contract for a.pdf"}, stats[1])

	failedRows, err := f.GetRows(failedSheet)
	require.NoError(t, err)
	require.Len(t, failedRows, 2)
	assert.Equal(t, []string{"bad.pdf", "no text found in bad.pdf"}, failedRows[1])
}

func TestRunTaskFailsWhenNothingExtracted(t *testing.T) {
	out := t.TempDir()
	q := queue.NewTaskQueue(nil, nil)
	w := NewWorker("worker-1", q, out, WithExtractor(fakeExtractor{failing: map[string]bool{"a.pdf": true}}))

	task := dequeue(t, q, "/up/a.pdf")
	w.RunTask(context.Background(), task)

	failed, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "All PDFs failed during extraction", failed.ErrorMessage)
	assert.NoFileExists(t, filepath.Join(out, task.ID+".xlsx"))
}

func TestRunTaskReportsProgress(t *testing.T) {
	q := queue.NewTaskQueue(nil, nil)
	w := NewWorker("worker-1", q, t.TempDir(), WithExtractor(fakeExtractor{}))

	var mu sync.Mutex
	var seen []int
	w.SetNotifier(func(id string) {
		task, err := q.GetTask(id)
		if err == nil {
			mu.Lock()
			seen = append(seen, task.Progress)
			mu.Unlock()
		}
	})

	task := dequeue(t, q, "/up/a.pdf", "/up/b.pdf")
	w.RunTask(context.Background(), task)

	assert.Equal(t, []int{5, 37, 70, 80, 100}, seen)
}

func TestWorkerLoopDrainsQueue(t *testing.T) {
	q := queue.NewTaskQueue(nil, nil)
	w := NewWorker("worker-1", q, t.TempDir(), WithExtractor(fakeExtractor{}), WithIdleWait(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := w.Start(ctx)

	task, err := q.EnqueueTask(context.Background(), []string{"/up/a.pdf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := q.GetTask(task.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.IsProcessing())
}

func TestPDFExtractorRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0644))

	doc, err := PDFExtractor{}.Extract(context.Background(), path)

	assert.Error(t, err)
	assert.Equal(t, "fake.pdf", doc.FileName)
	assert.False(t, doc.Processed())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "abcd…", excerpt("abcdefgh", 5))
}

type cancellingExtractor struct {
	cancel context.CancelFunc
}

func (c cancellingExtractor) Extract(ctx context.Context, path string) (models.ExtractedDocument, error) {
	c.cancel()
	return models.ExtractedDocument{FileName: filepath.Base(path)}, ctx.Err()
}

func TestRunTaskRequeuesOnShutdown(t *testing.T) {
	dataDir := t.TempDir()
	persister, err := queue.NewFilePersister(dataDir, nil)
	require.NoError(t, err)
	q := queue.NewTaskQueue(persister, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker("worker-1", q, t.TempDir(), WithExtractor(cancellingExtractor{cancel: cancel}))

	task := dequeue(t, q, "/up/a.pdf", "/up/b.pdf")
	w.RunTask(ctx, task)

	interrupted, err := q.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, interrupted.Status)
	assert.Empty(t, interrupted.ErrorMessage)
	assert.Empty(t, q.FailedTasks())

	reloaded, err := queue.NewFilePersister(dataDir, nil)
	require.NoError(t, err)
	restarted := queue.NewTaskQueue(reloaded, nil)
	require.NoError(t, restarted.LoadTasks(context.Background()))

	pending := restarted.PendingTasks()
	require.Len(t, pending, 1)
	assert.Equal(t, task.ID, pending[0].ID)
	assert.Empty(t, restarted.FailedTasks())
}
