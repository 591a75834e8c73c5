package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/iisa/pkg/repository"
)

func (r *SQLiteRepo) Get(ctx context.Context, key string) (string, error) {
	row := r.conn.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Set upserts key and bumps the shared revision in the same transaction.
func (r *SQLiteRepo) Set(ctx context.Context, key, value string) (int64, error) {
	return r.write(ctx, key, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv_entries (key, value, updated) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated`, key, value, now())
		return err
	})
}

func (r *SQLiteRepo) Remove(ctx context.Context, key string) (int64, error) {
	return r.write(ctx, key, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
		return err
	})
}

func (r *SQLiteRepo) Revision(ctx context.Context) (int64, error) {
	var rev int64
	if err := r.conn.QueryRow(ctx, `SELECT revision FROM kv_revision WHERE id = 1`).Scan(&rev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

func (r *SQLiteRepo) write(ctx context.Context, key string, fn func(tx *sql.Tx) error) (int64, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}

	var rev int64
	row := tx.QueryRowContext(ctx, `UPDATE kv_revision SET revision = revision + 1 WHERE id = 1 RETURNING revision`)
	if err := row.Scan(&rev); err != nil {
		return 0, fmt.Errorf("bump revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	r.logger.Debug("kv write", "key", key, "revision", rev)
	return rev, nil
}
