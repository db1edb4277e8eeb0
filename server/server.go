package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jupark12/contract-extract/models"
	"github.com/jupark12/contract-extract/queue"
	"github.com/jupark12/contract-extract/worker"
	"go.uber.org/zap"
)

const (
	DefaultMaxFiles    = 20
	DefaultMaxFileSize = 50 * 1024 * 1024

	serviceName  = "PDF Contract Extractor API"
	xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Config holds the knobs of the processing service.
type Config struct {
	Addr        string
	UploadDir   string
	OutputDir   string
	Workers     int
	MaxFiles    int
	MaxFileSize int64
}

// Server handles HTTP requests for task management
type Server struct {
	queue     *queue.TaskQueue
	workers   []*worker.Worker
	cfg       Config
	wsManager *WebSocketManager
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// NewServer creates a new server instance. workerOpts are applied to every worker.
func NewServer(q *queue.TaskQueue, cfg Config, log *zap.Logger, workerOpts ...worker.Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	s := &Server{
		queue:     q,
		cfg:       cfg,
		workers:   make([]*worker.Worker, cfg.Workers),
		wsManager: NewWebSocketManager(log),
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	opts := append([]worker.Option{worker.WithLogger(log)}, workerOpts...)
	for i := 0; i < cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		s.workers[i] = worker.NewWorker(workerID, q, cfg.OutputDir, opts...)
		s.workers[i].SetNotifier(s.logTaskUpdate)
	}

	return s
}

func (s *Server) logTaskUpdate(taskID string) {
	task, err := s.queue.GetTask(taskID)
	if err != nil {
		s.log.Warn("failed to get task for notification", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	s.log.Debug("task updated", zap.String("task_id", taskID), zap.Stringer("status", task.Status), zap.Int("progress", task.Progress))
}

// Handler returns the routed HTTP handler, with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	mux.HandleFunc("DELETE /api/cleanup/{id}", s.handleCleanup)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start runs the workers, the websocket manager and the HTTP listener until
// ctx is cancelled, then shuts everything down.
func (s *Server) Start(ctx context.Context) error {
	s.wsManager.Start(ctx)
	go s.forwardUpdates(ctx)

	stopped := make([]<-chan struct{}, 0, len(s.workers))
	for _, w := range s.workers {
		stopped = append(stopped, w.Start(ctx))
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", s.cfg.Addr), zap.Int("workers", len(s.workers)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	for _, ch := range stopped {
		<-ch
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) forwardUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.queue.Updates():
			s.wsManager.BroadcastTaskUpdate(task)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": serviceName, "status": "running"})
}

// handleUpload stores every "files" part and enqueues one task for the batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxFiles)*s.cfg.MaxFileSize+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if detail := s.validateUpload(files); detail != "" {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	batchDir := filepath.Join(s.cfg.UploadDir, uuid.New().String())
	if err := os.MkdirAll(batchDir, 0755); err != nil {
		s.log.Error("failed to create upload directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "File upload failed")
		return
	}

	paths := make([]string, 0, len(files))
	for i, header := range files {
		path := filepath.Join(batchDir, fmt.Sprintf("%02d_%s", i+1, filepath.Base(header.Filename)))
		if err := saveUpload(header, path); err != nil {
			s.log.Error("failed to save upload", zap.String("file", header.Filename), zap.Error(err))
			os.RemoveAll(batchDir)
			writeError(w, http.StatusInternalServerError, "File upload failed")
			return
		}
		paths = append(paths, path)
	}

	task, err := s.queue.EnqueueTask(r.Context(), paths)
	if err != nil {
		s.log.Error("failed to enqueue task", zap.Error(err))
		os.RemoveAll(batchDir)
		writeError(w, http.StatusServiceUnavailable, "Background processing unavailable")
		return
	}

	writeJSON(w, http.StatusOK, models.UploadResponse{
		TaskID:    task.ID,
		Message:   fmt.Sprintf("%d PDF file(s) uploaded successfully", len(files)),
		FileCount: len(files),
	})
}

func (s *Server) validateUpload(files []*multipart.FileHeader) string {
	if len(files) == 0 {
		return "No files uploaded"
	}
	if len(files) > s.cfg.MaxFiles {
		return fmt.Sprintf("Maximum %d PDF files allowed per upload", s.cfg.MaxFiles)
	}
	for _, header := range files {
		if strings.TrimSpace(header.Filename) == "" {
			return "Invalid file name"
		}
		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			return fmt.Sprintf("Invalid file type: %s. Only PDF files are allowed.", header.Filename)
		}
		if header.Size > s.cfg.MaxFileSize {
			return fmt.Sprintf("File too large: %s. Max allowed size is %dMB.", header.Filename, s.cfg.MaxFileSize/(1024*1024))
		}
	}
	return ""
}

func saveUpload(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.queue.GetTask(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task.StatusResponse())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	task, err := s.queue.GetTask(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	if task.Status != models.StatusCompleted {
		writeError(w, http.StatusBadRequest, "Task is not completed yet")
		return
	}

	f, err := os.Open(task.OutputFile)
	if err != nil {
		writeError(w, http.StatusNotFound, "Output file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusNotFound, "Output file not found")
		return
	}

	w.Header().Set("Content-Type", xlsxMimeType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": fmt.Sprintf("contract_data_%s.xlsx", taskID)}))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	task, err := s.queue.RemoveTask(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
		return
	case errors.Is(err, queue.ErrTaskActive):
		writeError(w, http.StatusBadRequest, "Cannot cleanup a running task")
		return
	case err != nil:
		s.log.Error("cleanup failed", zap.String("task_id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	s.removeTaskFiles(task)
	s.log.Info("cleaned up task", zap.String("task_id", task.ID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cleanup completed"})
}

func (s *Server) removeTaskFiles(task models.Task) {
	dirs := make(map[string]bool)
	for _, path := range task.SourceFiles {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("failed to remove upload directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	if task.OutputFile != "" {
		if err := os.Remove(task.OutputFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove output file", zap.String("path", task.OutputFile), zap.Error(err))
		}
	}
}

// handleTasks lists tasks, optionally filtered by ?status=.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeJSON(w, http.StatusOK, s.queue.AllTasks())
		return
	}

	parsed, err := models.ParseJobStatus(status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status parameter")
		return
	}

	var tasks []models.Task
	switch parsed {
	case models.StatusPending:
		tasks = s.queue.PendingTasks()
	case models.StatusProcessing:
		tasks = s.queue.ProcessingTasks()
	case models.StatusCompleted:
		tasks = s.queue.CompletedTasks()
	case models.StatusFailed:
		tasks = s.queue.FailedTasks()
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleWebSocket sends the current task list, then streams task updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	initialData, err := json.Marshal(map[string]any{
		"type":  "initial_tasks",
		"tasks": s.queue.AllTasks(),
	})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, initialData)
	}

	s.wsManager.RegisterClient(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}
