// Package main is the entrypoint for the httpserver-provider.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/httpserver-provider/internal/config"
	"github.com/morezero/httpserver-provider/internal/server"
	"github.com/morezero/httpserver-provider/pkg/db"
)

const usage = `Usage: httpserver-provider [command]
       httpserver-provider serve              Start the provider (NATS control subject, listeners, admin HTTP).
       httpserver-provider migrate up         Run database migrations.
       httpserver-provider migrate status     Show migration status.
       httpserver-provider bindings           List persisted module bindings.
       httpserver-provider bindings clear     Delete every persisted binding.

Commands:
  serve           (default) Start the provider.
  migrate up      Run binding-store migrations only.
  migrate status  Show which migrations are applied.
  bindings        List bindings that will be restored on the next start.
  bindings clear  Forget all persisted bindings; running providers are not affected.

Environment: COMMS_URL, PROVIDER_VERSION, ADMIN_ADDR (default :9090), DATABASE_URL (migrate, bindings), MIGRATION_PATH, BOOTSTRAP_FILE.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("httpserver-provider migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("httpserver-provider migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("httpserver-provider migrate status: %v", err)
			}
		default:
			log.Fatalf("httpserver-provider migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "bindings":
		clearAll := len(args) > 1 && args[1] == "clear"
		if err := runBindings(clearAll); err != nil {
			log.Fatalf("httpserver-provider bindings: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("httpserver-provider: %v", err)
	}
}

// openDB loads config, checks DATABASE_URL and opens a pool.
func openDB(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	n, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Printf("Applied %d migrations.\n", n)
	return nil
}

func runMigrateStatus() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runBindings(clearAll bool) error {
	ctx := context.Background()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := db.NewBindingRepository(pool)
	if clearAll {
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("All persisted bindings deleted.")
		return nil
	}

	bindings, err := repo.List(ctx)
	if err != nil {
		return err
	}
	return printBindings(os.Stdout, bindings)
}

// printBindings writes one row per binding with its values as sorted KEY=VALUE pairs.
func printBindings(w io.Writer, bindings []db.Binding) error {
	if len(bindings) == 0 {
		_, err := fmt.Fprintln(w, "No persisted bindings.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tVALUES\tUPDATED")
	for _, b := range bindings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Module, formatValues(b.Values), b.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func formatValues(values map[string]string) string {
	if len(values) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values[k])
	}
	return strings.Join(pairs, ",")
}
