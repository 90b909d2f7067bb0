package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"examgen/internal/blob"
	"examgen/internal/config"
	"examgen/internal/exam"
	server "examgen/internal/http"
	"examgen/internal/jobs"
	"examgen/internal/llm"
	"examgen/internal/migrate"
	"examgen/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	// Basic pool settings; adjust as needed
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	rootCtx := context.Background()

	blobs, err := blob.New(rootCtx, cfg.Storage)
	if err != nil {
		log.Fatalf("blob storage init failed: %v", err)
	}

	startWorker := func() {
		client, provider, model, err := llm.NewClientFromConfig(cfg)
		if err != nil {
			log.Fatalf("llm client init failed: %v", err)
		}
		executor := exam.NewExecutor(st, blobs, client, string(provider), model, logger)
		runner := jobs.NewRunner(cfg, st, executor, logger)
		go runner.Start(rootCtx)
	}

	switch *role {
	case "api":
		// API-only: do not start the generation worker.
		s := server.NewServer(cfg, st, blobs, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		// Worker-only: start the generation worker and block.
		startWorker()
		select {}
	case "all":
		// Default: run both API and worker in one process.
		startWorker()
		s := server.NewServer(cfg, st, blobs, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}
