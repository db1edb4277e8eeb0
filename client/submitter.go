package client

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

// Uploader is the part of the service the submitter needs.
type Uploader interface {
	Upload(ctx context.Context, files []models.CandidateFile) (*models.UploadResponse, error)
}

// Submitter turns a staged set into one job. It never retries; a failed
// submission has to be started again by the caller.
type Submitter struct {
	uploader Uploader
	log      *zap.Logger
	busy     atomic.Bool
}

func NewSubmitter(uploader Uploader, log *zap.Logger) *Submitter {
	return &Submitter{uploader: uploader, log: logger.OrNop(log)}
}

// Submit uploads files and returns the job id. Every failure is a
// *models.SubmissionError, except a concurrent call which gets ErrSubmitInFlight.
func (s *Submitter) Submit(ctx context.Context, files []models.CandidateFile) (string, error) {
	if len(files) == 0 {
		return "", &models.SubmissionError{Cause: models.ErrNoFiles}
	}

	if !s.busy.CompareAndSwap(false, true) {
		return "", models.ErrSubmitInFlight
	}
	defer s.busy.Store(false)

	resp, err := s.uploader.Upload(ctx, files)
	if err != nil {
		s.log.Error("upload failed", zap.Int("file_count", len(files)), zap.Error(err))

		var apiErr *models.APIError
		if errors.As(err, &apiErr) {
			return "", &models.SubmissionError{StatusCode: apiErr.StatusCode, Detail: apiErr.Detail, Cause: err}
		}
		return "", &models.SubmissionError{Cause: err}
	}

	if resp.TaskID == "" {
		return "", &models.SubmissionError{Detail: "response did not include a task_id", Cause: errors.New("missing task_id")}
	}

	s.log.Info("submission accepted", zap.String("task_id", resp.TaskID), zap.Int("file_count", len(files)))
	return resp.TaskID, nil
}

// InFlight reports whether a submission is outstanding.
func (s *Submitter) InFlight() bool {
	return s.busy.Load()
}
