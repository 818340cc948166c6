package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
	"github.com/he1nht3t/envmonitoring-web/internal/db"
	"github.com/he1nht3t/envmonitoring-web/internal/logging"
	"github.com/he1nht3t/envmonitoring-web/internal/migrate"
)

const usage = `usage: %s <command>
  migrate  apply pending schema migrations
  status   list migrations not yet applied
`

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Common, version, "tools")

	conn, err := db.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	ctx := context.Background()
	switch os.Args[1] {
	case "migrate":
		applied, err := migrate.Run(ctx, conn, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d migration(s) applied\n", len(applied))
	case "status":
		pending, err := migrate.Pending(ctx, conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			os.Exit(1)
		}
		if len(pending) == 0 {
			fmt.Println("schema is up to date")
			return
		}
		for _, m := range pending {
			fmt.Printf("pending %s_%s\n", m.Version, m.Name)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
