package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

// Persister stores task snapshots so a restarted service keeps its tasks.
type Persister interface {
	Save(ctx context.Context, task *models.Task) error
	LoadAll(ctx context.Context) ([]*models.Task, error)
	Delete(ctx context.Context, taskID string) error
}

// FilePersister keeps one JSON file per task in a directory.
type FilePersister struct {
	dir string
	log *zap.Logger
}

func NewFilePersister(dir string, log *zap.Logger) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FilePersister{dir: dir, log: log}, nil
}

func (p *FilePersister) path(taskID string) string {
	return filepath.Join(p.dir, taskID+".json")
}

func (p *FilePersister) Save(_ context.Context, task *models.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task data: %w", err)
	}

	if err := os.WriteFile(p.path(task.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	return nil
}

// LoadAll skips unreadable files rather than failing the whole load.
func (p *FilePersister) LoadAll(_ context.Context) ([]*models.Task, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	tasks := make([]*models.Task, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		taskPath := filepath.Join(p.dir, entry.Name())
		data, err := os.ReadFile(taskPath)
		if err != nil {
			p.log.Warn("failed to read task file", zap.String("path", taskPath), zap.Error(err))
			continue
		}

		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			p.log.Warn("failed to unmarshal task data", zap.String("path", taskPath), zap.Error(err))
			continue
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

func (p *FilePersister) Delete(_ context.Context, taskID string) error {
	if err := os.Remove(p.path(taskID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete task file: %w", err)
	}
	return nil
}

// MemoryPersister keeps nothing; tasks live only as long as the process.
type MemoryPersister struct{}

func (MemoryPersister) Save(context.Context, *models.Task) error { return nil }
func (MemoryPersister) LoadAll(context.Context) ([]*models.Task, error) { return nil, nil }
func (MemoryPersister) Delete(context.Context, string) error { return nil }
