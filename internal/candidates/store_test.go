package candidates_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/garnizeh/iisa/internal/candidates"
	"github.com/garnizeh/iisa/internal/imaging"
	"github.com/garnizeh/iisa/internal/persist"
	"github.com/garnizeh/iisa/pkg/repository/mock"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newStore(t *testing.T, kv *mock.KV, clk *clock) *candidates.Store {
	t.Helper()
	s, err := candidates.New(context.Background(), persist.New(kv, quietLogger()), candidates.Options{
		Logger:       quietLogger(),
		Now:          clk.Now,
		SyncInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func form(name, email string, age int) candidates.Form {
	return candidates.Form{
		FullName:            name,
		Email:               email,
		PhoneNumber:         "050-1234567",
		Age:                 age,
		City:                "Haifa",
		Hobbies:             "astronomy",
		WhyPerfectCandidate: "I have trained for zero gravity for years",
	}
}

func wait[T any](t *testing.T, f *candidates.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func mustAdd(t *testing.T, s *candidates.Store, f candidates.Form) string {
	t.Helper()
	id, err := wait(t, s.Add(context.Background(), f))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatalf("Add returned empty id")
	}
	return id
}

func TestNew_CountsOneVisitPerActivation(t *testing.T) {
	kv := mock.NewKV()
	clk := newClock()

	s1 := newStore(t, kv, clk)
	if got := s1.VisitStats().TotalVisits; got != 1 {
		t.Fatalf("first activation: TotalVisits = %d, want 1", got)
	}
	raw, ok := kv.Raw(candidates.KeyVisits)
	if !ok || raw != `{"totalVisits":1,"registrations":0}` {
		t.Fatalf("visit not persisted immediately: %q", raw)
	}

	s2 := newStore(t, kv, clk)
	if got := s2.VisitStats().TotalVisits; got != 2 {
		t.Fatalf("second activation: TotalVisits = %d, want 2", got)
	}
}

func TestNew_ObserveDoesNotCountVisit(t *testing.T) {
	kv := mock.NewKV()
	clk := newClock()
	newStore(t, kv, clk)

	obs, err := candidates.New(context.Background(), persist.New(kv, quietLogger()), candidates.Options{
		Logger:  quietLogger(),
		Now:     clk.Now,
		Observe: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(obs.Stop)
	if got := obs.VisitStats().TotalVisits; got != 1 {
		t.Fatalf("observer must not count a visit: TotalVisits = %d", got)
	}
}

func TestNew_RecomputesCanEditOnLoad(t *testing.T) {
	kv := mock.NewKV()
	clk := newClock()
	ctx := context.Background()

	old := clk.Now().Add(-4 * 24 * time.Hour).Format(time.RFC3339Nano)
	fresh := clk.Now().Add(-24 * time.Hour).Format(time.RFC3339Nano)
	raw := `[` +
		`{"id":"old","fullName":"Old","email":"old@example.com","age":40,"submissionDate":"` + old + `","canEdit":true},` +
		`{"id":"new","fullName":"New","email":"new@example.com","age":30,"submissionDate":"` + fresh + `","canEdit":false}` +
		`]`
	if _, err := kv.Set(ctx, candidates.KeyCandidates, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := newStore(t, kv, clk)
	oldC, ok := s.FindByID("old")
	if !ok || oldC.CanEdit {
		t.Fatalf("persisted canEdit=true must not survive a closed window: %+v", oldC)
	}
	newC, ok := s.FindByID("new")
	if !ok || !newC.CanEdit {
		t.Fatalf("persisted canEdit=false must not survive an open window: %+v", newC)
	}
	list := s.Candidates()
	if len(list) != 2 || list[0].ID != "old" || list[1].ID != "new" {
		t.Fatalf("insertion order lost: %+v", list)
	}
}

func TestNew_CorruptStorageFallsBackToDefaults(t *testing.T) {
	kv := mock.NewKV()
	ctx := context.Background()
	_, _ = kv.Set(ctx, candidates.KeyCandidates, `[{"id":1}]`)
	_, _ = kv.Set(ctx, candidates.KeyVisits, `not json`)

	s := newStore(t, kv, newClock())
	if n := len(s.Candidates()); n != 0 {
		t.Fatalf("expected empty collection, got %d", n)
	}
	if v := s.VisitStats(); v.TotalVisits != 1 || v.Registrations != 0 {
		t.Fatalf("expected default stats plus one visit, got %+v", v)
	}
}

func TestNew_UnavailableStorage(t *testing.T) {
	kv := mock.NewKV()
	kv.GetErr = errors.New("storage disabled")
	kv.SetErr = errors.New("storage disabled")

	s := newStore(t, kv, newClock())
	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))
	if _, ok := s.FindByID(id); !ok {
		t.Fatalf("in-memory session must keep working when storage fails")
	}
}

func TestAdd_ThenFindByID(t *testing.T) {
	kv := mock.NewKV()
	s := newStore(t, kv, newClock())

	live, err := candidates.New(context.Background(), persist.New(mock.NewKV(), quietLogger()), candidates.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer live.Stop()
	before := time.Now()
	id := mustAdd(t, live, form("Ada Lovelace", "ada@example.com", 36))
	after := time.Now()

	c, ok := live.FindByID(id)
	if !ok {
		t.Fatalf("FindByID(%q) found nothing", id)
	}
	if c.SubmissionDate.Before(before) || c.SubmissionDate.After(after) {
		t.Fatalf("submissionDate %v outside call window [%v, %v]", c.SubmissionDate, before, after)
	}
	if !c.CanEdit {
		t.Fatalf("new candidate must be editable")
	}
	if c.LastEditDate != nil {
		t.Fatalf("new candidate must not carry lastEditDate")
	}

	id2 := mustAdd(t, s, form("Grace Hopper", "grace@example.com", 45))
	if v := s.VisitStats(); v.Registrations != 1 {
		t.Fatalf("Registrations = %d, want 1", v.Registrations)
	}
	cur, ok := s.CurrentCandidate()
	if !ok || cur.ID != id2 {
		t.Fatalf("added candidate should become the session's current candidate")
	}
	if raw, _ := kv.Raw(candidates.KeyCurrentUser); raw != id2 {
		t.Fatalf("current id not persisted: %q", raw)
	}
	if raw, _ := kv.Raw(candidates.KeyCandidates); !strings.Contains(raw, `"email":"grace@example.com"`) {
		t.Fatalf("candidate not persisted: %s", raw)
	}
}

func TestAdd_UniqueIDs(t *testing.T) {
	s := newStore(t, mock.NewKV(), newClock())
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := mustAdd(t, s, form("Same Time", "t@example.com", 30))
		if seen[id] {
			t.Fatalf("duplicate id %q at iteration %d", id, i)
		}
		seen[id] = true
	}
}

func TestAdd_EncodesImage(t *testing.T) {
	s := newStore(t, mock.NewKV(), newClock())
	f := form("Ada Lovelace", "ada@example.com", 36)
	f.ProfileImage = &imaging.Upload{ContentType: "image/png", Size: 3, Data: strings.NewReader("abc")}

	id := mustAdd(t, s, f)
	c, _ := s.FindByID(id)
	if c.ProfileImage != "data:image/png;base64,YWJj" {
		t.Fatalf("unexpected profile image %q", c.ProfileImage)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestAdd_ImageFailureLeavesStoreUntouched(t *testing.T) {
	kv := mock.NewKV()
	s := newStore(t, kv, newClock())
	f := form("Ada Lovelace", "ada@example.com", 36)
	f.ProfileImage = &imaging.Upload{ContentType: "image/png", Data: failingReader{}}

	if _, err := wait(t, s.Add(context.Background(), f)); err == nil {
		t.Fatalf("expected encoding error")
	}
	if len(s.Candidates()) != 0 || s.VisitStats().Registrations != 0 {
		t.Fatalf("failed add must not mutate the store")
	}
}

func TestUpdate_UnknownOrClosedLeavesRecordUnchanged(t *testing.T) {
	kv := mock.NewKV()
	clk := newClock()
	s := newStore(t, kv, clk)
	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))

	rawBefore, _ := kv.Raw(candidates.KeyCandidates)
	recBefore, _ := s.FindByID(id)

	ok, err := wait(t, s.Update(context.Background(), "missing", form("X", "x@example.com", 20)))
	if err != nil || ok {
		t.Fatalf("Update(missing) = %v, %v; want false, nil", ok, err)
	}

	clk.Advance(4 * 24 * time.Hour)
	c, _ := s.FindByID(id)
	if c.CanEdit {
		t.Fatalf("canEdit must be false 4 days after submission")
	}
	recBefore.CanEdit = false

	ok, err = wait(t, s.Update(context.Background(), id, form("Changed", "changed@example.com", 50)))
	if err != nil || ok {
		t.Fatalf("Update(closed) = %v, %v; want false, nil", ok, err)
	}

	rawAfter, _ := kv.Raw(candidates.KeyCandidates)
	if rawAfter != rawBefore {
		t.Fatalf("persisted record changed:\nbefore %s\nafter  %s", rawBefore, rawAfter)
	}
	recAfter, _ := s.FindByID(id)
	if !reflect.DeepEqual(recBefore, recAfter) {
		t.Fatalf("in-memory record changed:\nbefore %+v\nafter  %+v", recBefore, recAfter)
	}
}

func TestUpdate_Success(t *testing.T) {
	kv := mock.NewKV()
	clk := newClock()
	s := newStore(t, kv, clk)

	f := form("Ada Lovelace", "ada@example.com", 36)
	f.ProfileImage = &imaging.Upload{ContentType: "image/jpeg", Data: strings.NewReader("abc")}
	id := mustAdd(t, s, f)
	orig, _ := s.FindByID(id)

	clk.Advance(2 * time.Hour)
	upd := form("Ada King", "ada.king@example.com", 37)
	ok, err := wait(t, s.Update(context.Background(), id, upd))
	if err != nil || !ok {
		t.Fatalf("Update = %v, %v; want true", ok, err)
	}

	c, _ := s.FindByID(id)
	if c.FullName != "Ada King" || c.Email != "ada.king@example.com" || c.Age != 37 {
		t.Fatalf("fields not overwritten: %+v", c)
	}
	if c.ProfileImage != orig.ProfileImage {
		t.Fatalf("image must be retained when no new one is supplied")
	}
	if !c.SubmissionDate.Equal(orig.SubmissionDate) {
		t.Fatalf("submissionDate must be immutable")
	}
	if c.LastEditDate == nil || !c.LastEditDate.Equal(clk.Now()) {
		t.Fatalf("lastEditDate not stamped: %v", c.LastEditDate)
	}
	if !c.CanEdit {
		t.Fatalf("still inside the window")
	}
	if raw, _ := kv.Raw(candidates.KeyCandidates); !strings.Contains(raw, "ada.king@example.com") {
		t.Fatalf("update not persisted: %s", raw)
	}

	upd.ProfileImage = &imaging.Upload{ContentType: "image/png", Data: strings.NewReader("xyz")}
	if ok, _ := wait(t, s.Update(context.Background(), id, upd)); !ok {
		t.Fatalf("second update failed")
	}
	c, _ = s.FindByID(id)
	if c.ProfileImage != "data:image/png;base64,eHl6" {
		t.Fatalf("new image not applied: %q", c.ProfileImage)
	}
}

type heldReader struct {
	release chan struct{}
	r       io.Reader
}

func (h *heldReader) Read(p []byte) (int, error) {
	<-h.release
	return h.r.Read(p)
}

func TestUpdate_WindowRecheckedAtApplyTime(t *testing.T) {
	clk := newClock()
	s := newStore(t, mock.NewKV(), clk)
	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))

	clk.Advance(3*24*time.Hour - time.Minute)
	held := &heldReader{release: make(chan struct{}), r: strings.NewReader("abc")}
	upd := form("Late Edit", "ada@example.com", 36)
	upd.ProfileImage = &imaging.Upload{ContentType: "image/png", Data: held}

	fut := s.Update(context.Background(), id, upd)
	clk.Advance(2 * time.Minute)
	close(held.release)

	ok, err := wait(t, fut)
	if err != nil || ok {
		t.Fatalf("Update across window close = %v, %v; want false", ok, err)
	}
	c, _ := s.FindByID(id)
	if c.FullName != "Ada Lovelace" {
		t.Fatalf("record changed after window closed: %+v", c)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	kv := mock.NewKV()
	s := newStore(t, kv, newClock())
	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))
	ctx := context.Background()

	if !s.Remove(ctx, id) {
		t.Fatalf("first Remove should succeed")
	}
	list1, stats1 := s.Candidates(), s.VisitStats()
	raw1, _ := kv.Raw(candidates.KeyCandidates)

	if s.Remove(ctx, id) {
		t.Fatalf("second Remove should be a no-op")
	}
	list2, stats2 := s.Candidates(), s.VisitStats()
	raw2, _ := kv.Raw(candidates.KeyCandidates)

	if len(list1) != 0 || len(list2) != 0 || stats1 != stats2 || raw1 != raw2 {
		t.Fatalf("repeated Remove changed state: %+v %+v %q %q", stats1, stats2, raw1, raw2)
	}
	if stats2.Registrations != 0 {
		t.Fatalf("Registrations = %d, want 0", stats2.Registrations)
	}
	if _, ok := s.CurrentCandidate(); ok {
		t.Fatalf("removing the current candidate must clear it")
	}
	if _, ok := kv.Raw(candidates.KeyCurrentUser); ok {
		t.Fatalf("current id key must be deleted")
	}
}

func TestRemove_RegistrationsFloorAtZero(t *testing.T) {
	kv := mock.NewKV()
	clk := newClock()
	ctx := context.Background()
	sub := clk.Now().Add(-time.Hour).Format(time.RFC3339Nano)
	_, _ = kv.Set(ctx, candidates.KeyCandidates, `[{"id":"a","fullName":"A","email":"a@example.com","age":30,"submissionDate":"`+sub+`"}]`)
	_, _ = kv.Set(ctx, candidates.KeyVisits, `{"totalVisits":4,"registrations":0}`)

	s := newStore(t, kv, clk)
	if !s.Remove(ctx, "a") {
		t.Fatalf("Remove should succeed")
	}
	if r := s.VisitStats().Registrations; r != 0 {
		t.Fatalf("Registrations = %d, want 0", r)
	}
}

func TestRemove_ClosedWindowRejected(t *testing.T) {
	clk := newClock()
	s := newStore(t, mock.NewKV(), clk)
	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))
	clk.Advance(3 * 24 * time.Hour)

	if s.Remove(context.Background(), id) {
		t.Fatalf("Remove must refuse a record whose window closed")
	}
	if _, ok := s.FindByID(id); !ok {
		t.Fatalf("record must still exist")
	}
}

func TestFindByEmail_CaseInsensitive(t *testing.T) {
	s := newStore(t, mock.NewKV(), newClock())
	id := mustAdd(t, s, form("Ada Lovelace", "Ada@Example.com", 36))

	for _, q := range []string{"ada@example.com", "ADA@EXAMPLE.COM", "  ada@example.com "} {
		c, ok := s.FindByEmail(q)
		if !ok || c.ID != id {
			t.Fatalf("FindByEmail(%q) = %+v, %v", q, c, ok)
		}
	}
	if _, ok := s.FindByEmail("ada@example"); ok {
		t.Fatalf("match must be exact")
	}
	if _, ok := s.FindByEmail(""); ok {
		t.Fatalf("empty email must not match")
	}
}

func TestSetCurrentAndRemoveCurrent(t *testing.T) {
	kv := mock.NewKV()
	s := newStore(t, kv, newClock())
	ctx := context.Background()
	a := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))
	_ = mustAdd(t, s, form("Grace Hopper", "grace@example.com", 45))

	if s.SetCurrent(ctx, "missing") {
		t.Fatalf("SetCurrent must refuse unknown ids")
	}
	if !s.SetCurrent(ctx, a) {
		t.Fatalf("SetCurrent failed")
	}
	if raw, _ := kv.Raw(candidates.KeyCurrentUser); raw != a {
		t.Fatalf("current id not persisted: %q", raw)
	}
	if !s.RemoveCurrent(ctx) {
		t.Fatalf("RemoveCurrent failed")
	}
	if _, ok := s.FindByID(a); ok {
		t.Fatalf("current candidate still present")
	}
	if s.RemoveCurrent(ctx) {
		t.Fatalf("RemoveCurrent without a current candidate must be a no-op")
	}
	if n := len(s.Candidates()); n != 1 {
		t.Fatalf("expected one remaining candidate, got %d", n)
	}
}

func TestSubscribe(t *testing.T) {
	s := newStore(t, mock.NewKV(), newClock())
	ctx := context.Background()

	var mu sync.Mutex
	var got []candidates.Change
	unsubscribe := s.Subscribe(func(c candidates.Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})

	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))
	if ok, _ := wait(t, s.Update(ctx, id, form("Ada King", "ada@example.com", 36))); !ok {
		t.Fatalf("Update failed")
	}
	s.Remove(ctx, id)
	unsubscribe()
	_ = mustAdd(t, s, form("Grace Hopper", "grace@example.com", 45))

	mu.Lock()
	defer mu.Unlock()
	want := []candidates.Change{
		{Kind: candidates.ChangeAdded, ID: id},
		{Kind: candidates.ChangeUpdated, ID: id},
		{Kind: candidates.ChangeRemoved, ID: id},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %+v, want %+v", got, want)
	}
}

func TestCandidates_ReturnsCopies(t *testing.T) {
	s := newStore(t, mock.NewKV(), newClock())
	id := mustAdd(t, s, form("Ada Lovelace", "ada@example.com", 36))

	list := s.Candidates()
	list[0].FullName = "mutated"
	c, _ := s.FindByID(id)
	if c.FullName != "Ada Lovelace" {
		t.Fatalf("callers must not alias store state")
	}
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	s := newStore(t, mock.NewKV(), newClock())
	held := &heldReader{release: make(chan struct{}), r: strings.NewReader("abc")}
	f := form("Ada Lovelace", "ada@example.com", 36)
	f.ProfileImage = &imaging.Upload{ContentType: "image/png", Data: held}

	fut := s.Add(context.Background(), f)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := fut.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error while encoding is pending, got %v", err)
	}

	close(held.release)
	<-fut.Done()
	id, err := wait(t, fut)
	if err != nil || id == "" {
		t.Fatalf("operation must complete after the waiter gave up: %q, %v", id, err)
	}
	if _, ok := s.FindByID(id); !ok {
		t.Fatalf("abandoned wait must not abandon the add")
	}
}
