package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jupark12/contract-extract/models"
	"github.com/jupark12/contract-extract/queue"
	"go.uber.org/zap"
)

const (
	progressStarted   = 5
	progressExtracted = 70
	progressWriting   = 80

	defaultIdleWait = 500 * time.Millisecond
)

// Worker represents a processing node that consumes tasks
type Worker struct {
	ID         string
	Queue      *queue.TaskQueue
	Processing bool
	mu         sync.Mutex

	extractor Extractor
	outputDir string
	idleWait  time.Duration
	log       *zap.Logger
	notify    func(taskID string)
}

type Option func(*Worker)

func WithExtractor(e Extractor) Option {
	return func(w *Worker) {
		if e != nil {
			w.extractor = e
		}
	}
}

// WithIdleWait sets how long an idle worker sleeps before checking the queue again.
func WithIdleWait(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.idleWait = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWorker creates a worker that writes workbooks into outputDir.
func NewWorker(id string, q *queue.TaskQueue, outputDir string, opts ...Option) *Worker {
	w := &Worker{
		ID:        id,
		Queue:     q,
		extractor: PDFExtractor{},
		outputDir: outputDir,
		idleWait:  defaultIdleWait,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.With(zap.String("worker", id))
	return w
}

// SetNotifier registers a callback run after every task transition this worker makes.
func (w *Worker) SetNotifier(fn func(taskID string)) {
	w.notify = fn
}

// Start begins processing tasks until ctx is cancelled. The returned channel
// is closed once the worker has stopped.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	w.log.Info("worker starting")

	go func() {
		defer close(stopped)
		for {
			w.setProcessing(false)

			task, err := w.Queue.DequeueTask(ctx, w.ID)
			if err != nil {
				if !errors.Is(err, queue.ErrNoPendingTasks) {
					w.log.Warn("dequeue failed", zap.Error(err))
				}
				select {
				case <-ctx.Done():
					w.log.Info("worker stopped")
					return
				case <-time.After(w.idleWait):
				}
				continue
			}

			w.setProcessing(true)
			w.RunTask(ctx, task)

			if ctx.Err() != nil {
				w.setProcessing(false)
				w.log.Info("worker stopped")
				return
			}
		}
	}()

	return stopped
}

// RunTask processes one dequeued task to a terminal state. A task cut short
// by ctx goes back to the pending queue instead.
func (w *Worker) RunTask(ctx context.Context, task models.Task) {
	w.log.Info("processing task", zap.String("task_id", task.ID), zap.Int("file_count", len(task.SourceFiles)))

	outputFile, result, err := w.process(ctx, task)
	switch {
	case err != nil && ctx.Err() != nil:
		w.log.Warn("task interrupted, returning it to the queue", zap.String("task_id", task.ID), zap.Error(err))
		if rerr := w.Queue.RequeueTask(context.WithoutCancel(ctx), task.ID); rerr != nil {
			w.log.Error("failed to requeue task", zap.String("task_id", task.ID), zap.Error(rerr))
		}
	case err != nil:
		w.log.Error("task failed", zap.String("task_id", task.ID), zap.Error(err))
		if ferr := w.Queue.FailTask(context.WithoutCancel(ctx), task.ID, err.Error()); ferr != nil {
			w.log.Error("failed to record task failure", zap.String("task_id", task.ID), zap.Error(ferr))
		}
	default:
		w.log.Info("task completed",
			zap.String("task_id", task.ID),
			zap.Int("processed_files", result.ProcessedFiles),
			zap.Int("total_files", result.TotalFiles))
		if cerr := w.Queue.CompleteTask(context.WithoutCancel(ctx), task.ID, outputFile, result); cerr != nil {
			w.log.Error("failed to record task completion", zap.String("task_id", task.ID), zap.Error(cerr))
		}
	}
	w.notifyUpdate(task.ID)
}

func (w *Worker) process(ctx context.Context, task models.Task) (string, models.JobResult, error) {
	if len(task.SourceFiles) == 0 {
		return "", models.JobResult{}, errors.New("No valid PDF files to process")
	}

	w.progress(ctx, task.ID, progressStarted)

	total := len(task.SourceFiles)
	docs := make([]models.ExtractedDocument, 0, total)
	processed := 0
	for i, path := range task.SourceFiles {
		if err := ctx.Err(); err != nil {
			return "", models.JobResult{}, err
		}

		doc, err := w.extractor.Extract(ctx, path)
		if doc.FileName == "" {
			doc.FileName = filepath.Base(path)
		}
		if err != nil {
			w.log.Warn("pdf processing failed", zap.String("task_id", task.ID), zap.String("file", doc.FileName), zap.Error(err))
			doc.Err = err.Error()
		} else if doc.Processed() {
			processed++
		}
		docs = append(docs, doc)

		w.progress(ctx, task.ID, progressStarted+(i+1)*(progressExtracted-progressStarted)/total)
	}

	if processed == 0 {
		return "", models.JobResult{}, errors.New("All PDFs failed during extraction")
	}

	w.progress(ctx, task.ID, progressWriting)

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", models.JobResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	outputFile := filepath.Join(w.outputDir, task.ID+".xlsx")
	if err := WriteWorkbook(outputFile, docs); err != nil {
		return "", models.JobResult{}, err
	}

	return outputFile, models.JobResult{
		ProcessedFiles: processed,
		TotalFiles:     total,
		DownloadURL:    "/api/download/" + task.ID,
	}, nil
}

func (w *Worker) progress(ctx context.Context, taskID string, value int) {
	if err := w.Queue.UpdateProgress(ctx, taskID, value); err != nil {
		w.log.Warn("failed to record progress", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	w.notifyUpdate(taskID)
}

func (w *Worker) notifyUpdate(taskID string) {
	if w.notify != nil {
		w.notify(taskID)
	}
}

func (w *Worker) setProcessing(v bool) {
	w.mu.Lock()
	w.Processing = v
	w.mu.Unlock()
}

// IsProcessing reports whether the worker is busy with a task.
func (w *Worker) IsProcessing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Processing
}
