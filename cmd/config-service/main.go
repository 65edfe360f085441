// Package main provides the entry point for the config-service server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/txn2/config-service/pkg/database"
	"github.com/txn2/config-service/pkg/database/migrate"
	"github.com/txn2/config-service/pkg/platform"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	envFile    string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "config-service",
		Short:         "Versioned configuration store for services",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(c.envFile)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Environment file loaded before the configuration")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.mcpCmd(),
		c.versionCmd(),
	)
	return root
}

// loadEnvFile loads variables from path without overriding the environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration file, or the defaults and environment
// when no file was given, and validates it.
func (c *cli) loadConfig() (*platform.Config, error) {
	var (
		cfg *platform.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = platform.LoadConfig(c.configPath)
	} else {
		cfg, err = platform.DefaultConfig()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := platform.NewLogger(cfg.Log, c.stderr)
			lis, err := net.Listen("tcp", cfg.Server.Address)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Server.Address, err)
			}
			return serve(ctx, cfg, logger, lis)
		},
	}
}

// serve runs the platform behind an HTTP server on lis until ctx is done,
// then drains in-flight requests within the shutdown timeout.
func serve(ctx context.Context, cfg *platform.Config, logger *slog.Logger, lis net.Listener) error {
	p, err := platform.New(ctx, platform.WithConfig(cfg), platform.WithLogger(logger))
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("creating platform: %w", err)
	}
	if err := p.Start(ctx); err != nil {
		_ = lis.Close()
		_ = p.Stop(context.Background())
		return fmt.Errorf("starting platform: %w", err)
	}

	srv := &http.Server{
		Handler:      p.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving HTTP", "address", lis.Addr().String(), "version", cfg.Server.Version)
		errCh <- srv.Serve(lis)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Readiness flips to draining before the listener closes.
	stopErr := p.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", serveErr)
	}
	return stopErr
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// stdout carries the protocol, so logs go to stderr.
			logger := platform.NewLogger(cfg.Log, c.stderr)
			p, err := platform.New(ctx, platform.WithConfig(cfg), platform.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("creating platform: %w", err)
			}
			defer func() { _ = p.Stop(context.Background()) }()
			if err := p.Start(ctx); err != nil {
				return fmt.Errorf("starting platform: %w", err)
			}
			if err := p.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("serving mcp: %w", err)
			}
			return nil
		},
	}
}

// migrationDB runs schema migrations against one database.
type migrationDB interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Close() error
}

type sqlMigrationDB struct {
	db *sql.DB
}

func (s sqlMigrationDB) Up() error                    { return migrate.Run(s.db) }
func (s sqlMigrationDB) Down() error                  { return migrate.Down(s.db) }
func (s sqlMigrationDB) Steps(n int) error            { return migrate.Steps(s.db, n) }
func (s sqlMigrationDB) Version() (uint, bool, error) { return migrate.Version(s.db) }
func (s sqlMigrationDB) Close() error                 { return s.db.Close() }

// openMigrationDB is replaced in tests.
var openMigrationDB = func(ctx context.Context, cfg *platform.Config) (migrationDB, error) {
	db, err := database.Open(ctx, database.Config{DSN: cfg.Database.ConnString()})
	if err != nil {
		return nil, err
	}
	return sqlMigrationDB{db}, nil
}

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(migrationDB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != platform.StoragePostgres {
				return fmt.Errorf("migrations require storage.driver %s", platform.StoragePostgres)
			}
			db, err := openMigrationDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return fn(db)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(db migrationDB) error {
			if err := db.Up(); err != nil {
				return err
			}
			return c.printVersion(db)
		}),
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: run(func(db migrationDB) error {
			if err := db.Down(); err != nil {
				return err
			}
			return c.printVersion(db)
		}),
	}
	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE:  run(c.printVersion),
	}

	var steps int
	stepsCmd := &cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or roll back when N is negative",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
			}
			steps = n
			return nil
		},
		RunE: run(func(db migrationDB) error {
			if err := db.Steps(steps); err != nil {
				return err
			}
			return c.printVersion(db)
		}),
	}

	cmd.AddCommand(up, down, version, stepsCmd)
	return cmd
}

func (c *cli) printVersion(db migrationDB) error {
	v, dirty, err := db.Version()
	if err != nil {
		return err
	}
	if v == 0 && !dirty {
		_, err = fmt.Fprintln(c.stdout, "schema version: none")
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "schema version: %d (dirty: %t)\n", v, dirty)
	return err
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(c.stdout, "config-service version %s\n", platform.Version)
			return err
		},
	}
}
