// Package persist mirrors in-memory state to the key-value store as JSON.
//
// Every failure (unavailable store, malformed JSON, schema mismatch) is logged
// and reported as a false result; callers continue with their defaults.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/garnizeh/iisa/pkg/repository"
	"github.com/qri-io/jsonschema"
)

type Adapter struct {
	kv     repository.KVStore
	logger *slog.Logger

	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
	own     map[int64]struct{}
}

func New(kv repository.KVStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		kv:      kv,
		logger:  logger,
		schemas: make(map[string]*jsonschema.Schema),
		own:     make(map[int64]struct{}),
	}
}

// RegisterSchema compiles a JSON schema that values stored under key must
// satisfy when loaded.
func (a *Adapter) RegisterSchema(key string, schemaJSON []byte) error {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(schemaJSON, rs); err != nil {
		return fmt.Errorf("compile schema for %s: %w", key, err)
	}
	a.mu.Lock()
	a.schemas[key] = rs
	a.mu.Unlock()
	return nil
}

// Status is the outcome of a read.
type Status int

const (
	// Loaded means the value was read and decoded.
	Loaded Status = iota
	// Absent means the key holds no value.
	Absent
	// Failed means the store could not be read or the value is unusable.
	Failed
)

// Read decodes the value at key into v. v is left untouched unless the
// result is Loaded.
func (a *Adapter) Read(ctx context.Context, key string, v any) Status {
	raw, st := a.ReadString(ctx, key)
	if st != Loaded {
		return st
	}

	a.mu.RLock()
	schema := a.schemas[key]
	a.mu.RUnlock()
	if schema != nil {
		verrs, err := schema.ValidateBytes(ctx, []byte(raw))
		if err != nil {
			a.logger.Error("stored value is not JSON", slog.String("key", key), slog.Any("err", err))
			return Failed
		}
		if len(verrs) > 0 {
			a.logger.Error("stored value violates schema",
				slog.String("key", key),
				slog.String("path", verrs[0].PropertyPath),
				slog.String("reason", verrs[0].Message),
				slog.Int("violations", len(verrs)))
			return Failed
		}
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		a.logger.Error("decode failed", slog.String("key", key), slog.Any("err", err))
		return Failed
	}
	return Loaded
}

// Load is Read reporting only whether v was filled.
func (a *Adapter) Load(ctx context.Context, key string, v any) bool {
	return a.Read(ctx, key, v) == Loaded
}

// ReadString returns the raw value at key.
func (a *Adapter) ReadString(ctx context.Context, key string) (string, Status) {
	raw, err := a.kv.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", Absent
	}
	if err != nil {
		a.logger.Error("load failed", slog.String("key", key), slog.Any("err", err))
		return "", Failed
	}
	return raw, Loaded
}

// LoadString returns the raw value at key.
func (a *Adapter) LoadString(ctx context.Context, key string) (string, bool) {
	raw, st := a.ReadString(ctx, key)
	return raw, st == Loaded
}

// Save encodes v as JSON and stores it under key.
func (a *Adapter) Save(ctx context.Context, key string, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("encode failed", slog.String("key", key), slog.Any("err", err))
		return false
	}
	return a.SaveString(ctx, key, string(b))
}

// SaveString stores value under key verbatim.
func (a *Adapter) SaveString(ctx context.Context, key, value string) bool {
	rev, err := a.kv.Set(ctx, key, value)
	if err != nil {
		a.logger.Error("save failed", slog.String("key", key), slog.Any("err", err))
		return false
	}
	a.noteWrite(rev)
	return true
}

func (a *Adapter) Delete(ctx context.Context, key string) bool {
	rev, err := a.kv.Remove(ctx, key)
	if err != nil {
		a.logger.Error("delete failed", slog.String("key", key), slog.Any("err", err))
		return false
	}
	a.noteWrite(rev)
	return true
}

// Revision reports the shared store revision.
func (a *Adapter) Revision(ctx context.Context) (int64, bool) {
	rev, err := a.kv.Revision(ctx)
	if err != nil {
		a.logger.Error("read revision failed", slog.Any("err", err))
		return 0, false
	}
	return rev, true
}

// ExternalSince reports whether any revision in (seen, rev] was produced by
// another writer. Every write advances the shared revision by one, so the
// range is foreign unless this adapter wrote all of it. Revisions up to seen
// are forgotten.
func (a *Adapter) ExternalSince(seen, rev int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	var mine int64
	for r := range a.own {
		switch {
		case r <= seen:
			delete(a.own, r)
		case r <= rev:
			mine++
		}
	}
	return mine < rev-seen
}

func (a *Adapter) noteWrite(rev int64) {
	a.mu.Lock()
	a.own[rev] = struct{}{}
	a.mu.Unlock()
}
