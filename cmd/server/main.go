// Package main runs the kbase API server and its job workers.
//
// By default the process serves HTTP and, when server.run_workers is set,
// also runs the worker pools. The -role flag overrides that, and -migrate
// runs a database migration command and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/platform/postgres"
)

func main() {
	migrate := flag.String("migrate", "", "run a migration command (up, down, status, version, redo, reset) and exit")
	role := flag.String("role", "", "process role: api, worker or all (default: api, or all when server.run_workers is set)")
	flag.Parse()

	if err := run(*migrate, *role); err != nil {
		fmt.Fprintf(os.Stderr, "kbase-api: %v\n", err)
		os.Exit(1)
	}
}

func run(migrateCommand, roleFlag string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"run_workers", cfg.Server.RunWorkers)

	role, err := parseRole(roleFlag, cfg.Server.RunWorkers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	if migrateCommand != "" {
		defer func() { _ = db.Close() }()
		log.Info("running migrations", "command", migrateCommand, "args", flag.Args())
		return postgres.Migrate(ctx, db, log, migrateCommand, flag.Args()...)
	}

	rdb, err := kv.NewRedisClient(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return err
	}
	if err := kv.NewRedisStore(rdb).Ping(ctx); err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	app, err := newApplication(ctx, cfg, log, db, rdb)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx, role)
}
