package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

// Client talks to the processing service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request. Zero leaves requests bounded only by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = logger.OrNop(l)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload sends every file as a repeated "files" part of one multipart request
// and returns the task id assigned by the service.
func (c *Client) Upload(ctx context.Context, files []models.CandidateFile) (*models.UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}

	c.log.Info("files uploaded", zap.String("task_id", out.TaskID), zap.Int("file_count", len(files)))
	return &out, nil
}

func writeParts(mw *multipart.Writer, files []models.CandidateFile) error {
	for _, f := range files {
		if err := writePart(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, f models.CandidateFile) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer src.Close()

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		mime.FormatMediaType("form-data", map[string]string{"name": "files", "filename": f.Name}))
	header.Set("Content-Type", f.MimeType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", f.Name, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return nil
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*models.StatusResponse, error) {
	resp, err := c.get(ctx, "/api/status/"+url.PathEscape(taskID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var status models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

// Artifact is a downloaded result file.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download fetches the workbook produced for a completed task.
func (c *Client) Download(ctx context.Context, taskID string) (*Artifact, error) {
	resp, err := c.get(ctx, "/api/download/"+url.PathEscape(taskID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	artifact := &Artifact{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		artifact.Filename = params["filename"]
	}

	c.log.Info("artifact downloaded", zap.String("task_id", taskID), zap.Int("bytes", len(data)))
	return artifact, nil
}

// Cleanup asks the service to delete the files of a finished task.
func (c *Client) Cleanup(ctx context.Context, taskID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/cleanup/"+url.PathEscape(taskID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cleanup request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// Health reports whether the service answers its root endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	return resp, nil
}

// checkResponse turns a non-2xx response into an *models.APIError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &models.APIError{StatusCode: resp.StatusCode}

	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		apiErr.Detail = errResp.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}
