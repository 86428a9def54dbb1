// Command migrate applies, inspects and rolls back the Tribune schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"tribune/internal/config"
	"tribune/internal/database"

	"gorm.io/gorm"
)

const usageText = `usage: migrate [-timeout 2m] <command>

commands:
  up              apply pending SQL migrations
  auto            build the schema from the models (GORM AutoMigrate)
  status          show migration state and the content tables
  down [version]  roll back the latest migration; version must name it when given`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	timeout := flag.Duration("timeout", 2*time.Minute, "abort schema operations after this long")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usageText) }
	flag.Parse()
	if flag.NArg() < 1 {
		return fmt.Errorf("%s", usageText)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0))); cmd {
	case "up":
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
		log.Println("sql migrations applied")
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return fmt.Errorf("auto schema: %w", err)
		}
		log.Println("models migrated")
	case "status":
		return printStatus(ctx, db, cfg)
	case "down":
		return rollback(ctx, db, flag.Arg(1))
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usageText)
	}
	return nil
}

func printStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status: %w", err)
	}

	fmt.Printf("driver=%s mode=%s env=%s run_sql=%t run_auto=%t\n",
		cfg.DBDriver, status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate)
	if status.WillRunSQL {
		fmt.Printf("applied=%v\n", status.AppliedVersions)
		for _, m := range status.PendingMigrations {
			fmt.Printf("pending %s creates %s\n", m, strings.Join(m.Tables, ", "))
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tPRESENT\tROWS")
	for _, ts := range status.Tables {
		rows := "-"
		if ts.Exists {
			rows = strconv.FormatInt(ts.Rows, 10)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\n", ts.Name, ts.Exists, rows)
	}
	return w.Flush()
}

func rollback(ctx context.Context, db *gorm.DB, arg string) error {
	if arg == "" {
		m, err := database.RollbackLatest(ctx, db)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		log.Printf("rolled back %s", m)
		return nil
	}
	version, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", arg, err)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	log.Printf("rolled back migration %d", version)
	return nil
}
