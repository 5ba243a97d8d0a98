// Package main is the LearnHub operator CLI.
//
// Usage:
//
//	admin migrate
//	admin rollback
//	admin status
//	admin import-achievements -file catalog.xlsx [-sheet Sheet1] [-start-row 2] [-dry-run]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/learnhub/learnhub/config"
	"github.com/learnhub/learnhub/internal/infrastructure/importer"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/redis"
	"github.com/learnhub/learnhub/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <migrate|rollback|status|import-achievements> [flags]")
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.ForService(cfg.App.Name+"-admin", string(cfg.App.Environment), cfg.Observability.LogLevel)

	repos, err := persistence.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer repos.Close()

	switch cmd := args[0]; cmd {
	case "migrate":
		migrator, err := repos.Migrator()
		if err != nil {
			return err
		}
		n, err := migrator.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d migration(s)\n", n)
		return nil

	case "rollback":
		migrator, err := repos.Migrator()
		if err != nil {
			return err
		}
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		fmt.Println("rolled back the latest migration")
		return nil

	case "status":
		migrator, err := repos.Migrator()
		if err != nil {
			return err
		}
		status, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, m := range status {
			applied := "pending"
			if m.IsApplied {
				applied = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
		}
		return w.Flush()

	case "import-achievements":
		return importAchievements(ctx, cfg, repos, log, args[1:])

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func importAchievements(ctx context.Context, cfg *config.Config, repos *persistence.Repositories, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("import-achievements", flag.ContinueOnError)
	file := fs.String("file", "", "catalog file (.xlsx or .json)")
	sheet := fs.String("sheet", "", "sheet name (default: first sheet)")
	startRow := fs.Int("start-row", 2, "first data row in the sheet, 1-based")
	dryRun := fs.Bool("dry-run", false, "validate without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	importConfig := importer.DefaultImportConfig(*file)
	importConfig.SheetName = *sheet
	importConfig.StartRow = *startRow

	var store importer.CatalogWriter = repos.Catalog
	if !cfg.Redis.Disabled && !*dryRun {
		cache, err := redis.NewCache(redis.ConfigFrom(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, cached catalog expires on its own TTL", logger.Err(err))
		} else {
			defer cache.Close()
			store = redis.NewCatalogCache(repos.Catalog, cache, cfg.Gamification.CatalogCacheTTL, log)
		}
	}

	res, err := importer.Import(ctx, store, importConfig, *dryRun)
	if err != nil {
		return err
	}

	for _, msg := range res.Errors {
		fmt.Fprintln(os.Stderr, "  skipped", msg)
	}
	fmt.Printf("processed %d, accepted %d, skipped %d, written %d\n",
		res.TotalProcessed, len(res.Accepted), res.Skipped, res.Written)
	if repos.DB == nil && !*dryRun {
		fmt.Fprintln(os.Stderr, "warning: DATABASE_URL not set, entries were written to in-memory storage")
	}
	return nil
}
