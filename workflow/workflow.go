package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jupark12/contract-extract/client"
	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/models"
	"github.com/jupark12/contract-extract/poller"
	"github.com/jupark12/contract-extract/presenter"
	"github.com/jupark12/contract-extract/staging"
	"go.uber.org/zap"
)

// Service is everything the workflow needs from the processing service.
type Service interface {
	client.Uploader
	poller.StatusFetcher
	presenter.Downloader
}

// Workflow drives one staging area through submit, poll and present.
// Run must not be called concurrently.
type Workflow struct {
	service   Service
	area      *staging.Area
	submitter *client.Submitter
	presenter *presenter.Presenter
	log       *zap.Logger

	pollInterval     time.Duration
	progressInterval time.Duration
	onProgress       func(float64)
	onSubmitted      func(taskID string)
}

type Option func(*Workflow)

func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		w.log = logger.OrNop(l)
	}
}

func WithIntervals(poll, progress time.Duration) Option {
	return func(w *Workflow) {
		w.pollInterval = poll
		w.progressInterval = progress
	}
}

func WithProgressObserver(f func(float64)) Option {
	return func(w *Workflow) {
		w.onProgress = f
	}
}

func WithSubmittedObserver(f func(taskID string)) Option {
	return func(w *Workflow) {
		w.onSubmitted = f
	}
}

func WithStagingArea(a *staging.Area) Option {
	return func(w *Workflow) {
		if a != nil {
			w.area = a
		}
	}
}

func New(service Service, opts ...Option) *Workflow {
	w := &Workflow{
		service:          service,
		area:             staging.New(),
		log:              zap.NewNop(),
		pollInterval:     poller.DefaultPollInterval,
		progressInterval: poller.DefaultProgressInterval,
	}
	for _, o := range opts {
		o(w)
	}
	w.submitter = client.NewSubmitter(service, w.log)
	w.presenter = presenter.New(service, presenter.WithLogger(w.log), presenter.WithResetHook(w.area.Clear))
	return w
}

func (w *Workflow) Area() *staging.Area {
	return w.area
}

// Run stages the files at paths, submits them as one job, waits for the job
// to finish and returns its presentation. A staging rejection aborts before
// anything is sent and leaves the staging area empty. A failed job returns
// its *models.ProcessingFailure.
func (w *Workflow) Run(ctx context.Context, paths []string) (*presenter.Presentation, error) {
	candidates := make([]models.CandidateFile, 0, len(paths))
	for _, path := range paths {
		file, err := staging.FromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		candidates = append(candidates, file)
	}

	if _, rejection := w.area.AddFiles(candidates); rejection != nil {
		w.log.Warn("files rejected", zap.String("kind", string(rejection.Kind)), zap.String("file", rejection.FileName))
		w.area.Clear()
		return nil, rejection
	}

	taskID, err := w.submitter.Submit(ctx, w.area.Files())
	if err != nil {
		return nil, err
	}
	w.area.Clear()
	if w.onSubmitted != nil {
		w.onSubmitted(taskID)
	}

	p := poller.New(w.service, taskID,
		poller.WithLogger(w.log),
		poller.WithPollInterval(w.pollInterval),
		poller.WithProgressInterval(w.progressInterval),
		poller.WithProgressObserver(w.onProgress))
	p.Start(ctx)
	defer p.Stop()

	result, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return w.presenter.Present(taskID, *result), nil
}

// Presenter exposes the presenter so callers can render failures the same way.
func (w *Workflow) Presenter() *presenter.Presenter {
	return w.presenter
}
