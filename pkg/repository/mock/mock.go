package mock

import (
	"context"
	"sync"

	"github.com/garnizeh/iisa/pkg/repository"
)

// KV is an in-memory repository.KVStore for tests. The error fields let a
// test simulate unavailable storage.
type KV struct {
	mu   sync.Mutex
	data map[string]string
	rev  int64

	GetErr error
	SetErr error

	// ReadErr fails Get only; Revision keeps working.
	ReadErr error
}

var _ repository.KVStore = (*KV)(nil)

func NewKV() *KV {
	return &KV{data: make(map[string]string)}
}

func (m *KV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	if m.ReadErr != nil {
		return "", m.ReadErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (m *KV) Set(ctx context.Context, key, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return 0, m.SetErr
	}
	m.data[key] = value
	m.rev++
	return m.rev, nil
}

func (m *KV) Remove(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return 0, m.SetErr
	}
	delete(m.data, key)
	m.rev++
	return m.rev, nil
}

func (m *KV) Revision(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return 0, m.GetErr
	}
	return m.rev, nil
}

// Raw returns the stored value without touching the error fields.
func (m *KV) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}
