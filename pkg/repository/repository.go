package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KVStore.Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// KVStore is the flat key-value store backing all persisted state. It plays
// the part of browser local storage: string keys, string values, shared by
// every process that opens the same backing database.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) (int64, error)
	Remove(ctx context.Context, key string) (int64, error)
	// Revision returns a counter that increases on every Set or Remove made
	// by any process sharing the store.
	Revision(ctx context.Context) (int64, error)
}
