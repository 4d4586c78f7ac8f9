// OpsiMate Core - infrastructure monitoring backend
//
// This is the main entry point for the OpsiMate Core server. It loads the
// configuration, opens the configured database (SQLite or PostgreSQL),
// applies schema migrations and serves the REST API until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/opsimate/opsimate-core/migrations"

	"github.com/opsimate/opsimate-core/internal/api"
	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// dbHealthInterval is how often the background monitor pings the database.
const dbHealthInterval = 30 * time.Second

// options holds the parsed command-line flags.
type options struct {
	configPath  string
	migrateOnly bool
	showVersion bool
}

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command-line arguments. --config falls back to
// CONFIG_FILE.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("opsimate", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVarP(&opts.configPath, "config", "c", config.PathFromEnv(), "path to the YAML config file (env CONFIG_FILE)")
	flagSet.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply database migrations and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	if opts.showVersion {
		fmt.Fprintf(stdout, "opsimate %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting OpsiMate Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.NewLoader(opts.configPath, log).Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Sync() //nolint:errcheck // stdout sync errors are not actionable

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	applied, pending, err := database.GetMigrationStatus(ctx, db)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("database migrations complete", "applied", len(applied), "pending", len(pending))

	if opts.migrateOnly {
		return nil
	}

	server, err := api.New(api.Deps{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("OpsiMate Core started", "address", server.Addr(), "database", db.Kind())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		return server.Close()
	})
	g.Go(func() error {
		monitorDatabase(gctx, db, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	log.Info("OpsiMate Core stopped")
	return nil
}

// monitorDatabase pings the database periodically and logs failures until
// ctx is cancelled.
func monitorDatabase(ctx context.Context, db database.Handle, log *logging.Logger) {
	ticker := time.NewTicker(dbHealthInterval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := db.HealthCheck(checkCtx)
			cancel()

			switch {
			case err != nil && healthy:
				log.Warn("database health check failed", "error", err)
				healthy = false
			case err == nil && !healthy:
				log.Info("database connection recovered")
				healthy = true
			}
		}
	}
}
