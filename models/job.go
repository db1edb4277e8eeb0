package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of a job in the system
type JobStatus int

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

var statusNames = map[JobStatus]string{
	StatusPending:    "pending",
	StatusProcessing: "processing",
	StatusCompleted:  "completed",
	StatusFailed:     "failed",
}

// ParseJobStatus maps a wire value onto a JobStatus. Unknown values are an error.
func ParseJobStatus(s string) (JobStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", s)
}

func (s JobStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return json.Marshal(name)
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("job status must be a string: %w", err)
	}
	parsed, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// JobResult is populated by the service only once a job has completed.
type JobResult struct {
	ProcessedFiles int    `json:"processed_files"`
	TotalFiles     int    `json:"total_files"`
	DownloadURL    string `json:"download_url,omitempty"`
}

// HasArtifact reports whether the job produced a downloadable file.
func (r JobResult) HasArtifact() bool {
	return r.DownloadURL != ""
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	TaskID    string `json:"task_id"`
	Message   string `json:"message,omitempty"`
	FileCount int    `json:"file_count,omitempty"`
}

// StatusResponse is returned by GET /api/status/{task_id}.
type StatusResponse struct {
	TaskID    string     `json:"task_id"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	Result    *JobResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ErrorResponse is the body of every non-2xx response from the service.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Task represents a unit of extraction work tracked by the processing service
type Task struct {
	ID             string     `json:"id"`
	SourceFiles    []string   `json:"source_files"`
	OutputFile     string     `json:"output_file"`
	Status         JobStatus  `json:"status"`
	Progress       int        `json:"progress"`
	Result         *JobResult `json:"result,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ProcessingNode string     `json:"processing_node,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      time.Time  `json:"started_at,omitempty"`
	CompletedAt    time.Time  `json:"completed_at,omitempty"`
}

// StatusResponse renders the task the way the status endpoint reports it.
func (t *Task) StatusResponse() StatusResponse {
	resp := StatusResponse{
		TaskID:    t.ID,
		Status:    t.Status,
		Progress:  t.Progress,
		Error:     t.ErrorMessage,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Status == StatusCompleted && t.Result != nil {
		result := *t.Result
		resp.Result = &result
	}
	return resp
}
