package main

import (
	"context"
	"flag"
	"os"

	"github.com/fatih/color"
	"github.com/garnizeh/iisa/internal/config"
	"github.com/garnizeh/iisa/internal/db"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	out := flag.String("out", "", "Backup file (default <database_path>.bak)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fail("Config error: %v", err)
	}
	dst := *out
	if dst == "" {
		dst = cfg.DatabasePath + ".bak"
	}
	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		fail("Backup error: %v", err)
	}
	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		fail("Backup error: %v", err)
	}

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fail("Backup error: %v", err)
	}
	defer database.Close()

	// A consistent snapshot even while a server holds the database open.
	if _, err := database.Exec(ctx, "VACUUM INTO ?", dst); err != nil {
		fail("Backup error: %v", err)
	}

	color.Green("Database backup written to %s.", dst)
}

func fail(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
