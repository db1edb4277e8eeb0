package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jupark12/contract-extract/config"
	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/queue"
	"github.com/jupark12/contract-extract/server"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.DevServer.Addr, "listen address")
	workers := flag.Int("workers", cfg.DevServer.Workers, "number of extraction workers")
	flag.Parse()

	cfg.DevServer.Addr = *addr
	cfg.DevServer.Workers = *workers
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.LogFilePath, cfg.IsProduction())
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("dev server exited", zap.Error(err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var persister queue.Persister
	if cfg.DevServer.DatabaseURL != "" {
		pg, err := queue.ConnectPostgres(ctx, cfg.DevServer.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer pg.Close()
		persister = pg
	} else {
		fp, err := queue.NewFilePersister(cfg.DevServer.DataDir, log)
		if err != nil {
			return err
		}
		persister = fp
	}

	q := queue.NewTaskQueue(persister, log)
	if err := q.LoadTasks(ctx); err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	for _, dir := range []string{cfg.DevServer.UploadDir, cfg.DevServer.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	srv := server.NewServer(q, server.Config{
		Addr:      cfg.DevServer.Addr,
		UploadDir: cfg.DevServer.UploadDir,
		OutputDir: cfg.DevServer.OutputDir,
		Workers:   cfg.DevServer.Workers,
	}, log)

	return srv.Start(ctx)
}
