package presenter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jupark12/contract-extract/client"
	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/models"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL     = time.Hour
	defaultCachePurge   = 10 * time.Minute
	fallbackNamePattern = "contract_data_%s.xlsx"
)

// Downloader fetches the artifact of a completed job.
type Downloader interface {
	Download(ctx context.Context, taskID string) (*client.Artifact, error)
}

// Presenter shows the outcome of a job and owns the way back to staging.
type Presenter struct {
	downloader Downloader
	artifacts  *cache.Cache
	log        *zap.Logger
	onReset    func()

	// serializes downloads so one job is fetched at most once
	mu sync.Mutex
}

type Option func(*Presenter)

// WithResetHook runs fn whenever a presentation is reset, typically clearing the staging area.
func WithResetHook(fn func()) Option {
	return func(p *Presenter) {
		p.onReset = fn
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Presenter) {
		p.log = logger.OrNop(l)
	}
}

// WithCacheTTL sets how long a downloaded artifact stays available.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Presenter) {
		if ttl > 0 {
			p.artifacts = cache.New(ttl, defaultCachePurge)
		}
	}
}

func New(d Downloader, opts ...Option) *Presenter {
	p := &Presenter{
		downloader: d,
		artifacts:  cache.New(defaultCacheTTL, defaultCachePurge),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Presentation is the view of a completed job.
type Presentation struct {
	JobID  string
	Result models.JobResult

	presenter *Presenter
}

// Present builds the presentation of a completed job. It does no I/O.
func (p *Presenter) Present(jobID string, result models.JobResult) *Presentation {
	p.log.Info("presenting job result",
		zap.String("task_id", jobID),
		zap.Int("processed_files", result.ProcessedFiles),
		zap.Int("total_files", result.TotalFiles))
	return &Presentation{JobID: jobID, Result: result, presenter: p}
}

func (pr *Presentation) Summary() string {
	return fmt.Sprintf("Processed %d of %d files", pr.Result.ProcessedFiles, pr.Result.TotalFiles)
}

// Download returns the job artifact. Repeated calls return the same artifact
// without contacting the service again.
func (pr *Presentation) Download(ctx context.Context) (*client.Artifact, error) {
	p := pr.presenter
	p.mu.Lock()
	defer p.mu.Unlock()

	if x, found := p.artifacts.Get(pr.JobID); found {
		return x.(*client.Artifact), nil
	}

	artifact, err := p.downloader.Download(ctx, pr.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to download result for task %s: %w", pr.JobID, err)
	}
	p.artifacts.Set(pr.JobID, artifact, cache.DefaultExpiration)
	return artifact, nil
}

// SaveTo downloads the artifact into dir and returns the written path.
func (pr *Presentation) SaveTo(ctx context.Context, dir string) (string, error) {
	artifact, err := pr.Download(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, pr.fileName(artifact))
	if err := os.WriteFile(path, artifact.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	pr.presenter.log.Info("result saved", zap.String("task_id", pr.JobID), zap.String("path", path))
	return path, nil
}

func (pr *Presentation) fileName(a *client.Artifact) string {
	name := filepath.Base(a.Filename)
	if a.Filename == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Sprintf(fallbackNamePattern, pr.JobID)
	}
	return name
}

// Reset drops the job context and hands control back to staging.
func (pr *Presentation) Reset() {
	pr.presenter.reset(pr.JobID)
}

// FailurePresentation is the view of a job that ended in failure.
type FailurePresentation struct {
	JobID string
	Err   error

	presenter *Presenter
}

func (p *Presenter) PresentFailure(jobID string, err error) *FailurePresentation {
	p.log.Warn("presenting job failure", zap.String("task_id", jobID), zap.Error(err))
	return &FailurePresentation{JobID: jobID, Err: err, presenter: p}
}

func (fp *FailurePresentation) Message() string {
	if fp.Err == nil {
		return "Processing failed"
	}
	return fp.Err.Error()
}

func (fp *FailurePresentation) Reset() {
	fp.presenter.reset(fp.JobID)
}

func (p *Presenter) reset(jobID string) {
	p.artifacts.Delete(jobID)
	if p.onReset != nil {
		p.onReset()
	}
	p.log.Debug("presentation reset", zap.String("task_id", jobID))
}
