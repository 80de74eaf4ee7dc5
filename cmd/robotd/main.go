// robotd is the reference robot backend: an in-memory (or MySQL-backed)
// /robots API with an /admin control plane for resets, seeding, and
// fault injection.
//
// Usage:
//
//	robotd [--port 8082] [--seed-file robots.json] [--mysql-dsn DSN]
//	       [--latency 200ms] [--fail-rate 0.1] [--verbose]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/retreat896/MobileDev-Assignment02/internal/server"
	"github.com/retreat896/MobileDev-Assignment02/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "robotd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := server.ParseFlags(args)
	if err != nil {
		return err
	}
	logger := server.NewLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo store.Repository
	if cfg.MySQLDSN != "" {
		db, err := store.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = db
		logger.Info("using mysql storage")
	} else {
		repo = store.NewMemory()
		logger.Info("using in-memory storage")
	}

	srv := server.New(cfg, repo, logger)
	if err := srv.LoadSeedFile(ctx); err != nil {
		return err
	}
	if cfg.SeedFile != "" {
		logger.Info("loaded seed file", "path", cfg.SeedFile)
	}
	return srv.Serve(ctx)
}
