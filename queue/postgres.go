package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupark12/contract-extract/models"
	"go.uber.org/zap"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	progress   INTEGER NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

const upsertTask = `
INSERT INTO tasks (id, status, progress, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    progress = EXCLUDED.progress,
    data = EXCLUDED.data,
    updated_at = EXCLUDED.updated_at`

// PostgresPersister stores tasks in a PostgreSQL "tasks" table.
type PostgresPersister struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// ConnectPostgres opens a pool for dsn, checks it and makes sure the tasks table exists.
func ConnectPostgres(ctx context.Context, dsn string, log *zap.Logger) (*PostgresPersister, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	pc.MaxConns = 4
	pc.ConnConfig.RuntimeParams["application_name"] = "contract-extract-devserver"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	p := &PostgresPersister{pool: pool, log: log}
	if err := p.ensureSchema(dialCtx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("connected to database")
	return p, nil
}

func (p *PostgresPersister) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTasksTable); err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Save(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task data: %w", err)
	}

	_, err = p.pool.Exec(ctx, upsertTask,
		task.ID, task.Status.String(), task.Progress, data, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (p *PostgresPersister) LoadAll(ctx context.Context) ([]*models.Task, error) {
	rows, err := p.pool.Query(ctx, `SELECT data FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			p.log.Warn("skipping unreadable task row", zap.Error(err))
			continue
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	return tasks, nil
}

func (p *PostgresPersister) Delete(ctx context.Context, taskID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

func (p *PostgresPersister) Close() {
	p.pool.Close()
}
