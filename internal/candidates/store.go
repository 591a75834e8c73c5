// Package candidates holds the in-memory candidate collection, its
// edit-window rule, derived dashboard statistics, and the synchronization
// with other processes sharing the same key-value store.
package candidates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	dbfs "github.com/garnizeh/iisa/db"
	"github.com/garnizeh/iisa/internal/imaging"
	"github.com/garnizeh/iisa/internal/persist"
	"github.com/garnizeh/iisa/pkg/models"
)

// Keys of the persisted records.
const (
	KeyCandidates  = "iisa_candidates"
	KeyVisits      = "iisa_visits"
	KeyCurrentUser = "iisa_current_user"
)

const (
	DefaultEditWindow   = 3 * 24 * time.Hour
	DefaultSyncInterval = 5 * time.Second
)

// Form carries the mutable candidate fields as submitted by the registration
// form. ProfileImage is nil when no new image was chosen.
type Form struct {
	FullName            string
	Email               string
	PhoneNumber         string
	Age                 int
	City                string
	Hobbies             string
	WhyPerfectCandidate string
	ProfileImage        *imaging.Upload
}

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
	ChangeCurrent ChangeKind = "current"
	ChangeReload  ChangeKind = "reload"
)

// Change describes a completed mutation. ID is empty for reloads.
type Change struct {
	Kind ChangeKind
	ID   string
}

type Options struct {
	EditWindow   time.Duration
	SyncInterval time.Duration
	Logger       *slog.Logger
	// Now overrides the wall clock, for tests.
	Now func() time.Time
	// Observe opens the store without counting a visit, for operator tools.
	Observe bool
}

type Store struct {
	adapter  *persist.Adapter
	logger   *slog.Logger
	now      func() time.Time
	window   time.Duration
	interval time.Duration

	mu         sync.RWMutex
	candidates []models.Candidate
	visits     models.VisitStats
	current    string
	seenRev    int64

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	pending  sync.WaitGroup
	watchers sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New loads persisted state, counts one visit and persists it. Storage
// failures fall back to empty state; only a broken bundled schema is fatal.
func New(ctx context.Context, adapter *persist.Adapter, opts Options) (*Store, error) {
	schema, err := dbfs.SeedFiles.ReadFile("seed/candidates_schema_v1.json")
	if err != nil {
		return nil, fmt.Errorf("read candidates schema: %w", err)
	}
	if err := adapter.RegisterSchema(KeyCandidates, schema); err != nil {
		return nil, err
	}

	s := &Store{
		adapter:  adapter,
		logger:   opts.Logger,
		now:      opts.Now,
		window:   opts.EditWindow,
		interval: opts.SyncInterval,
		subs:     make(map[int]func(Change)),
		stop:     make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.window <= 0 {
		s.window = DefaultEditWindow
	}
	if s.interval <= 0 {
		s.interval = DefaultSyncInterval
	}

	s.mu.Lock()
	s.loadLocked(ctx, true)
	if !opts.Observe {
		s.visits.TotalVisits++
		s.adapter.Save(ctx, KeyVisits, s.visits)
	}
	s.mu.Unlock()

	s.logger.Info("candidate store ready",
		slog.Int("candidates", len(s.candidates)),
		slog.Int("total_visits", s.visits.TotalVisits))
	return s, nil
}

// EditWindow is the period after submission during which a record may change.
func (s *Store) EditWindow() time.Duration { return s.window }

func (s *Store) canEdit(submitted time.Time) bool {
	return s.now().Sub(submitted) < s.window
}

// loadLocked replaces in-memory state with what is persisted. Absent values
// become empty defaults. A value that cannot be read falls back to its
// default only on the initial load; a reload keeps what is in memory so the
// next write does not erase the stored data. It reports whether every value
// was read; the seen revision only advances then, so a failed reload is
// retried on the next poll.
func (s *Store) loadLocked(ctx context.Context, initial bool) bool {
	rev, complete := s.adapter.Revision(ctx)

	var list []models.Candidate
	switch s.adapter.Read(ctx, KeyCandidates, &list) {
	case persist.Loaded:
		for i := range list {
			list[i].CanEdit = s.canEdit(list[i].SubmissionDate)
		}
		s.candidates = list
	case persist.Absent:
		s.candidates = nil
	default:
		complete = false
		if initial {
			s.candidates = nil
		}
	}

	var visits models.VisitStats
	switch s.adapter.Read(ctx, KeyVisits, &visits) {
	case persist.Loaded:
		s.visits = visits
	case persist.Absent:
		s.visits = models.VisitStats{}
	default:
		complete = false
		if initial {
			s.visits = models.VisitStats{}
		}
	}

	cur, st := s.adapter.ReadString(ctx, KeyCurrentUser)
	switch st {
	case persist.Loaded:
		s.current = cur
	case persist.Absent:
		s.current = ""
	default:
		complete = false
		if initial {
			s.current = ""
		}
	}

	if complete && rev > s.seenRev {
		s.seenRev = rev
	}
	return complete
}

// saveLocked mirrors candidates and visit stats to storage.
func (s *Store) saveLocked(ctx context.Context) {
	list := s.candidates
	if list == nil {
		list = []models.Candidate{}
	}
	s.adapter.Save(ctx, KeyCandidates, list)
	s.adapter.Save(ctx, KeyVisits, s.visits)
}

// Reload replaces in-memory state wholesale with the persisted state and
// notifies subscribers. Values that cannot be read keep their in-memory
// state; Reload reports false then.
func (s *Store) Reload(ctx context.Context) bool {
	s.mu.Lock()
	complete := s.loadLocked(ctx, false)
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeReload})
	return complete
}

// Subscribe registers fn to be called synchronously after every completed
// mutation or reload. Call the returned function to unsubscribe.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// view returns a copy of c with CanEdit recomputed against the clock.
func (s *Store) view(c models.Candidate) models.Candidate {
	c.CanEdit = s.canEdit(c.SubmissionDate)
	if c.LastEditDate != nil {
		t := *c.LastEditDate
		c.LastEditDate = &t
	}
	return c
}

// Candidates returns the collection in insertion order.
func (s *Store) Candidates() []models.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Candidate, len(s.candidates))
	for i, c := range s.candidates {
		out[i] = s.view(c)
	}
	return out
}

func (s *Store) VisitStats() models.VisitStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visits
}

func (s *Store) FindByID(id string) (models.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.view(s.candidates[i]), true
	}
	return models.Candidate{}, false
}

// FindByEmail matches the trimmed address case-insensitively.
func (s *Store) FindByEmail(email string) (models.Candidate, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Candidate{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.candidates {
		if strings.EqualFold(strings.TrimSpace(c.Email), email) {
			return s.view(c), true
		}
	}
	return models.Candidate{}, false
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.candidates {
		if s.candidates[i].ID == id {
			return i
		}
	}
	return -1
}
