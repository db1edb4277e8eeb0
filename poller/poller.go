package poller

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval     = 2 * time.Second
	DefaultProgressInterval = time.Second

	initialProgress  = 10.0
	progressSlowdown = 90.0
	maxStep          = 10.0
	// the estimate stays strictly below full scale until the job completes
	maxEstimate  = 99.0
	fullProgress = 100.0
)

// ErrStopped is returned by Wait when the poller was torn down before the job finished.
var ErrStopped = errors.New("poller stopped before the job finished")

// StatusFetcher is the status endpoint of the processing service.
type StatusFetcher interface {
	Status(ctx context.Context, taskID string) (*models.StatusResponse, error)
}

// Outcome is the terminal result of a job session: either Result is set
// (completed) or Err is a *models.ProcessingFailure (failed).
type Outcome struct {
	TaskID string
	Result *models.JobResult
	Err    error
}

// Poller tracks one job until it reaches a terminal state. It owns two
// timers: the status poll and a cosmetic progress estimate that carries no
// information about real completion.
type Poller struct {
	fetcher          StatusFetcher
	taskID           string
	log              *zap.Logger
	pollInterval     time.Duration
	progressInterval time.Duration
	random           func() float64
	onProgress       func(float64)
	onOutcome        func(Outcome)

	mu       sync.Mutex
	progress float64
	status   models.JobStatus
	queries  int
	outcome  *Outcome
	started  bool
	cancel   context.CancelFunc

	pending  sync.WaitGroup
	terminal chan struct{}
	released chan struct{}
	done     chan struct{}
}

type Option func(*Poller)

func WithPollInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithProgressInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.progressInterval = d
		}
	}
}

// WithRand replaces the source of the random progress increment; f returns values in [0,1).
func WithRand(f func() float64) Option {
	return func(p *Poller) {
		if f != nil {
			p.random = f
		}
	}
}

// WithProgressObserver is called from the poll loop with every new estimate.
// The observer must not call Stop.
func WithProgressObserver(f func(float64)) Option {
	return func(p *Poller) {
		p.onProgress = f
	}
}

// WithOutcomeObserver is called exactly once when the job becomes terminal,
// after the poll loop has exited and its timers are released. The observer
// may call Stop.
func WithOutcomeObserver(f func(Outcome)) Option {
	return func(p *Poller) {
		p.onOutcome = f
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		p.log = logger.OrNop(l)
	}
}

func New(fetcher StatusFetcher, taskID string, opts ...Option) *Poller {
	p := &Poller{
		fetcher:          fetcher,
		taskID:           taskID,
		log:              zap.NewNop(),
		pollInterval:     DefaultPollInterval,
		progressInterval: DefaultProgressInterval,
		random:           rand.Float64,
		status:           models.StatusPending,
		terminal:         make(chan struct{}),
		released:         make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start issues the first status query immediately and keeps polling until
// the job is terminal, ctx ends or Stop is called. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.progress = initialProgress
	session, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info("tracking job", zap.String("task_id", p.taskID))
	go p.run(session)
}

type queryResult struct {
	resp *models.StatusResponse
	err  error
}

func (p *Poller) run(session context.Context) {
	defer p.release()
	defer p.pending.Wait()
	defer p.cancel()

	pollTicker := time.NewTicker(p.pollInterval)
	defer pollTicker.Stop()
	progressTicker := time.NewTicker(p.progressInterval)
	defer progressTicker.Stop()

	// at most one query is outstanding, so a buffer of one never blocks the sender
	results := make(chan queryResult, 1)
	inFlight := true
	p.query(session, results)

	for {
		select {
		case <-session.Done():
			p.log.Debug("job tracking stopped", zap.String("task_id", p.taskID))
			return

		case <-pollTicker.C:
			if session.Err() != nil {
				return
			}
			if inFlight {
				continue
			}
			inFlight = true
			p.query(session, results)

		case <-progressTicker.C:
			if session.Err() != nil {
				return
			}
			p.advanceProgress()

		case r := <-results:
			inFlight = false
			if session.Err() != nil {
				return
			}
			if r.err == nil && r.resp == nil {
				r.err = errors.New("empty status response")
			}
			if r.err != nil {
				// Transient failures are retried on the poll cadence forever:
				// there is no backoff and no attempt cap.
				err := &models.PollingTransientError{TaskID: p.taskID, Cause: r.err}
				p.log.Warn("status polling error", zap.String("task_id", p.taskID), zap.Error(err))
				continue
			}
			if p.apply(r.resp) {
				return
			}
		}
	}
}

func (p *Poller) query(ctx context.Context, results chan<- queryResult) {
	p.mu.Lock()
	p.queries++
	p.mu.Unlock()

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		if err := ctx.Err(); err != nil {
			results <- queryResult{err: err}
			return
		}
		resp, err := p.fetcher.Status(ctx, p.taskID)
		results <- queryResult{resp: resp, err: err}
	}()
}

// apply folds a status response into the session and reports whether it was terminal.
func (p *Poller) apply(resp *models.StatusResponse) bool {
	switch resp.Status {
	case models.StatusPending, models.StatusProcessing:
		p.mu.Lock()
		p.status = resp.Status
		p.mu.Unlock()
		return false

	case models.StatusCompleted:
		result := models.JobResult{}
		if resp.Result != nil {
			result = *resp.Result
		}
		p.mu.Lock()
		p.status = models.StatusCompleted
		p.progress = fullProgress
		p.mu.Unlock()
		p.notifyProgress(fullProgress)

		p.log.Info("job completed",
			zap.String("task_id", p.taskID),
			zap.Int("processed_files", result.ProcessedFiles),
			zap.Int("total_files", result.TotalFiles))
		p.finish(Outcome{TaskID: p.taskID, Result: &result})
		return true

	case models.StatusFailed:
		p.mu.Lock()
		p.status = models.StatusFailed
		p.mu.Unlock()

		failure := &models.ProcessingFailure{TaskID: p.taskID, Reason: resp.Error}
		p.log.Error("job failed", zap.String("task_id", p.taskID), zap.Error(failure))
		p.finish(Outcome{TaskID: p.taskID, Err: failure})
		return true

	default:
		p.log.Warn("ignoring unknown job status", zap.String("task_id", p.taskID), zap.Stringer("status", resp.Status))
		return false
	}
}

func (p *Poller) finish(o Outcome) {
	p.mu.Lock()
	p.outcome = &o
	p.mu.Unlock()
	close(p.terminal)
}

// release lets Stop callers go before the outcome observer runs.
func (p *Poller) release() {
	close(p.released)
	if o, ok := p.Outcome(); ok && p.onOutcome != nil {
		p.onOutcome(o)
	}
	close(p.done)
}

func (p *Poller) advanceProgress() {
	p.mu.Lock()
	if p.progress >= progressSlowdown {
		p.mu.Unlock()
		return
	}
	p.progress = min(p.progress+p.random()*maxStep, maxEstimate)
	current := p.progress
	p.mu.Unlock()

	p.notifyProgress(current)
}

func (p *Poller) notifyProgress(v float64) {
	if p.onProgress != nil {
		p.onProgress(v)
	}
}

// Stop tears the session down and waits until both timers and any
// outstanding status query are released.
func (p *Poller) Stop() {
	p.mu.Lock()
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-p.released
}

// Wait blocks until the job is terminal. A failed job returns its
// *models.ProcessingFailure; a torn-down session returns ErrStopped.
func (p *Poller) Wait(ctx context.Context) (*models.JobResult, error) {
	select {
	case <-p.terminal:
	case <-p.released:
		select {
		case <-p.terminal:
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	o, _ := p.Outcome()
	return o.Result, o.Err
}

// Outcome returns the terminal outcome once there is one.
func (p *Poller) Outcome() (Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcome == nil {
		return Outcome{}, false
	}
	return *p.outcome, true
}

// Done is closed once the poll loop has exited, its timers are released and
// the outcome observer has returned.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Progress is the cosmetic estimate in [0,100]. It only reaches 100 on completion.
func (p *Poller) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Status is the last status reported by the service.
func (p *Poller) Status() models.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Queries is the number of status queries issued so far.
func (p *Poller) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

func (p *Poller) TaskID() string {
	return p.taskID
}
