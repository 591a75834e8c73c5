package candidates

import (
	"context"
	"log/slog"
	"time"
)

// Watch starts polling the shared store for writes made by other processes.
// When one is seen the store reloads wholesale and notifies subscribers.
func (s *Store) Watch(ctx context.Context) {
	s.watchers.Add(1)
	go s.watch(ctx)
}

// Stop ends the watcher and waits for it and for in-flight Add/Update
// operations to finish.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.watchers.Wait()
	s.pending.Wait()
}

func (s *Store) watch(ctx context.Context) {
	defer s.watchers.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			s.logger.Info("store watcher stopping")
			return
		case <-ctx.Done():
			s.logger.Info("context canceled, store watcher exiting")
			return
		case <-t.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce reloads if another writer changed the shared store since the
// last complete load. Revisions written through this store's adapter do not
// count. It reports whether a reload happened.
func (s *Store) SyncOnce(ctx context.Context) bool {
	rev, ok := s.adapter.Revision(ctx)
	if !ok {
		return false
	}
	s.mu.RLock()
	seen := s.seenRev
	s.mu.RUnlock()
	if rev <= seen {
		return false
	}
	if !s.adapter.ExternalSince(seen, rev) {
		s.mu.Lock()
		if rev > s.seenRev {
			s.seenRev = rev
		}
		s.mu.Unlock()
		return false
	}
	s.logger.Debug("external change detected", slog.Int64("revision", rev), slog.Int64("seen", seen))
	if !s.Reload(ctx) {
		s.logger.Warn("reload incomplete, keeping in-memory state", slog.Int64("revision", rev))
	}
	return true
}
