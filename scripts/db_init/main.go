package main

import (
	"context"
	"flag"
	"os"

	"github.com/fatih/color"
	dbfs "github.com/garnizeh/iisa/db"
	"github.com/garnizeh/iisa/internal/config"
	"github.com/garnizeh/iisa/internal/db"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fail("Config error: %v", err)
	}
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fail("DB init error: %v", err)
	}
	defer database.Close()

	// run migrations and seed the visit counter
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fail("Migration runner error: %v", err)
	}

	var rev int64
	if err := database.QueryRow(ctx, "SELECT revision FROM kv_revision WHERE id = 1").Scan(&rev); err != nil {
		fail("Revision check error: %v", err)
	}

	color.Green("Database %s initialized (revision %d).", cfg.DatabasePath, rev)
}

func fail(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
