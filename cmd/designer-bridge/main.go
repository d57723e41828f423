// Package main is the entrypoint for the designer-bridge editor side.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/designer-bridge/internal/config"
	"github.com/morezero/designer-bridge/internal/server"
	"github.com/morezero/designer-bridge/pkg/db"
)

const usage = `Usage: designer-bridge [command]
       designer-bridge serve              Start the editor bridge (transport, dispatcher, HTTP status).
       designer-bridge migrate up         Apply pending session audit migrations.
       designer-bridge migrate status     List migrations and whether they are applied.
       designer-bridge migrate down       Not supported; migrations are forward-only.
       designer-bridge ensure-db [name]   Create database if missing (default name: designer_test). Uses DATABASE_URL host/user.
       designer-bridge clear              Delete all recorded sessions; schema is preserved.
       designer-bridge prune [age]        Delete sessions closed longer than age ago (default 168h).

Commands:
  serve            (default) Start the editor bridge.
  migrate up       Run database migrations only.
  migrate status   Show current migration status.
  ensure-db [name] Create database (e.g. designer_test) on same host as DATABASE_URL.
  clear            Truncate session audit data.
  prune [age]      Remove closed sessions older than age (Go duration, e.g. 24h).

Environment: TRANSPORT (nats|websocket), COMMS_URL, SESSION_ID, EDITOR_LAUNCH_URL,
EDITOR_TOP_ID, REPORT_INVALID_LOAD, DATABASE_URL (optional for serve, required for
migrate/clear/prune), MIGRATION_PATH (falls back to the embedded schema),
AUDIT_QUEUE_SIZE, HTTP_ADDR, LOG_LEVEL. See README.
`

const defaultPruneAge = 7 * 24 * time.Hour

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("designer-bridge migrate: require subcommand (up, status, down)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("designer-bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(os.Stdout); err != nil {
				log.Fatalf("designer-bridge migrate status: %v", err)
			}
		case "down":
			log.Fatalf("designer-bridge migrate down: %v", db.ErrForwardOnly)
		default:
			log.Fatalf("designer-bridge migrate: unknown subcommand %q (use up, status, down)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("designer-bridge clear: %v", err)
		}
		return
	case "prune":
		age, err := parsePruneAge(args[1:])
		if err != nil {
			log.Fatalf("designer-bridge prune: %v", err)
		}
		if err := runPrune(age); err != nil {
			log.Fatalf("designer-bridge prune: %v", err)
		}
		return
	case "ensure-db":
		dbName := "designer_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("designer-bridge ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("designer-bridge: %v", err)
	}
}

// withPool loads config, validates it for DB commands and hands fn an open pool.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migs, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migs); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func runMigrateStatus(w io.Writer) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migs, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		states, err := db.MigrationStatus(ctx, pool, migs)
		if err != nil {
			return err
		}
		printMigrationStates(w, states)
		return nil
	})
}

func printMigrationStates(w io.Writer, states []db.MigrationState) {
	pending := 0
	for _, st := range states {
		if st.Applied {
			fmt.Fprintf(w, "  applied  %s (%s)\n", st.Name, st.AppliedAt.Format(time.RFC3339))
			continue
		}
		pending++
		fmt.Fprintf(w, "  pending  %s\n", st.Name)
	}
	if pending > 0 {
		fmt.Fprintf(w, "%d pending; run 'designer-bridge migrate up'.\n", pending)
		return
	}
	fmt.Fprintf(w, "Schema up to date (%d migrations).\n", len(states))
}

func runClear() error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		n, err := db.NewRepository(pool).Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d sessions.\n", n)
		return nil
	})
}

func parsePruneAge(args []string) (time.Duration, error) {
	if len(args) == 0 || args[0] == "" {
		return defaultPruneAge, nil
	}
	age, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", args[0], err)
	}
	if age <= 0 {
		return 0, fmt.Errorf("age must be positive, got %s", args[0])
	}
	return age, nil
}

func runPrune(age time.Duration) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		n, err := db.NewRepository(pool).PruneClosed(ctx, age)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d sessions closed more than %s ago.\n", n, age)
		return nil
	})
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	targetURL, err := db.DatabaseURLFor(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
