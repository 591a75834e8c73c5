package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/garnizeh/iisa/internal/config"
	"github.com/garnizeh/iisa/internal/db"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	in := flag.String("in", "", "Backup file (default <database_path>.bak)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fail("Config error: %v", err)
	}
	src := *in
	if src == "" {
		src = cfg.DatabasePath + ".bak"
	}
	dst := cfg.DatabasePath

	if err := verify(src); err != nil {
		fail("Restore error: %s is not a usable backup: %v", src, err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		fail("Restore error: %v", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		fail("Restore error: %v", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		fail("Restore error: %v", err)
	}
	// stale WAL files would be replayed over the restored data
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dst + suffix)
	}

	color.Yellow("Restart running servers; their in-memory state predates the restore.")
	color.Green("Database restored from %s.", src)
}

// verify opens the backup and checks that it holds the key-value tables.
func verify(path string) error {
	ctx := context.Background()
	database, err := db.New(ctx, "file:"+path+"?mode=ro", nil)
	if err != nil {
		return err
	}
	defer database.Close()

	var rev int64
	return database.QueryRow(ctx, "SELECT revision FROM kv_revision WHERE id = 1").Scan(&rev)
}

func fail(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
