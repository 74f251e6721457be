package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/db"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate|list")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: the set embedded in this binary; create writes to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if handled, err := runOffline(os.Stdout, opts); handled {
		exitOn(err)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.ForService("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd":    opts.cmd,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if cfg.DB.Driver == config.DBDriverSQLite {
		exitOn(migrateSQLite(ctx, logg, dbClient, opts.cmd))
		return
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "sql handle unavailable", err)
		os.Exit(1)
	}
	runner, err := migrate.NewRunner(sqlDB, opts.dir)
	exitOn(err)
	exitOn(runOnline(ctx, os.Stdout, runner, opts))
}

// runOffline handles the commands that only touch migration files.
func runOffline(out io.Writer, opts options) (bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return true, fmt.Errorf("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Fprintln(out, "migration validation passed")
		return true, nil
	case "list":
		files, err := migrate.ListFiles(opts.dir)
		if err != nil {
			return true, fmt.Errorf("list migrations: %w", err)
		}
		for _, f := range files {
			fmt.Fprintf(out, "%d\t%s\n", f.Version, f.Name)
		}
		return true, nil
	}
	return false, nil
}

func runOnline(ctx context.Context, out io.Writer, runner *migrate.Runner, opts options) error {
	var (
		results []*goose.MigrationResult
		err     error
	)
	switch opts.cmd {
	case "up":
		results, err = runner.Up(ctx)
	case "down":
		results, err = runner.Down(ctx)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		results, err = runner.MigrateTo(ctx, opts.version)
	case "status":
		status, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(out, status)
		return nil
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
	printResults(out, results)
	return err
}

func printResults(out io.Writer, results []*goose.MigrationResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "no migrations to apply")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		state := "ok"
		if r.Error != nil {
			state = "FAILED: " + r.Error.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond), state)
	}
	tw.Flush()
}

func printStatus(out io.Writer, status []*goose.MigrationStatus) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range status {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	tw.Flush()
}

// migrateSQLite applies the models directly. goose DDL targets Postgres.
func migrateSQLite(ctx context.Context, logg *logger.Logger, client *db.Client, cmd string) error {
	if cmd != "up" {
		return fmt.Errorf("-cmd=%s is not supported on sqlite", cmd)
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("sqlite auto-migrate: %w", err)
	}
	logg.Info(ctx, "sqlite schema migrated from models")
	return nil
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
