// Package session implements the dashboard login gate. It is a fixed
// credential check, not an authentication system.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/garnizeh/iisa/internal/persist"
	"github.com/garnizeh/iisa/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	KeyLoggedIn = "isLoggedIn"
	KeyUser     = "loggedInUser"

	LoginPath      = "/login"
	DefaultLanding = "/dashboard"
	RedirectParam  = "redirectUrl"
)

type Credentials struct {
	Username string
	Password string
}

type Gate struct {
	adapter  *persist.Adapter
	logger   *slog.Logger
	username string
	hash     []byte

	mu       sync.RWMutex
	loggedIn bool
	user     string

	subMu   sync.Mutex
	subs    map[int]func(models.Session)
	nextSub int
}

// NewGate restores the persisted login state. The password is kept only as
// a bcrypt hash.
func NewGate(ctx context.Context, adapter *persist.Adapter, creds Credentials, logger *slog.Logger) (*Gate, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("session credentials must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash session password: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		adapter:  adapter,
		logger:   logger,
		username: creds.Username,
		hash:     hash,
		subs:     make(map[int]func(models.Session)),
	}
	g.Reload(ctx)
	return g, nil
}

// Reload re-reads the persisted login state. A failed read keeps the
// in-memory state. Subscribers are notified only when the state changed.
func (g *Gate) Reload(ctx context.Context) {
	flag, flagSt := g.adapter.ReadString(ctx, KeyLoggedIn)
	user, userSt := g.adapter.ReadString(ctx, KeyUser)
	if flagSt == persist.Failed || userSt == persist.Failed {
		g.logger.Warn("session reload incomplete, keeping in-memory state")
		return
	}

	g.mu.Lock()
	wasIn, wasUser := g.loggedIn, g.user
	g.loggedIn = flag == "true"
	g.user = ""
	if g.loggedIn && userSt == persist.Loaded {
		g.user = user
	}
	changed := g.loggedIn != wasIn || g.user != wasUser
	state := g.stateLocked()
	g.mu.Unlock()

	if changed {
		g.notify(state)
	}
}

// Login succeeds only for the configured pair. Success persists the flag and
// the username; failure clears both.
func (g *Gate) Login(ctx context.Context, username, password string) bool {
	ok := username == g.username && bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil

	g.mu.Lock()
	if ok {
		g.loggedIn, g.user = true, username
		g.adapter.SaveString(ctx, KeyLoggedIn, "true")
		g.adapter.SaveString(ctx, KeyUser, username)
	} else {
		g.loggedIn, g.user = false, ""
		g.adapter.Delete(ctx, KeyLoggedIn)
		g.adapter.Delete(ctx, KeyUser)
	}
	state := g.stateLocked()
	g.mu.Unlock()

	if ok {
		g.logger.Info("dashboard login", slog.String("user", username))
	} else {
		g.logger.Warn("dashboard login rejected", slog.String("user", username))
	}
	g.notify(state)
	return ok
}

func (g *Gate) Logout(ctx context.Context) {
	g.mu.Lock()
	g.loggedIn, g.user = false, ""
	g.adapter.Delete(ctx, KeyLoggedIn)
	g.adapter.Delete(ctx, KeyUser)
	state := g.stateLocked()
	g.mu.Unlock()

	g.notify(state)
}

func (g *Gate) IsLoggedIn() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loggedIn
}

func (g *Gate) CurrentUser() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user, g.user != ""
}

func (g *Gate) State() models.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stateLocked()
}

func (g *Gate) stateLocked() models.Session {
	s := models.Session{LoggedIn: g.loggedIn}
	if g.user != "" {
		u := g.user
		s.CurrentUser = &u
	}
	return s
}

// Subscribe registers fn for login state changes.
func (g *Gate) Subscribe(fn func(models.Session)) func() {
	g.subMu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.subMu.Unlock()
	return func() {
		g.subMu.Lock()
		delete(g.subs, id)
		g.subMu.Unlock()
	}
}

func (g *Gate) notify(s models.Session) {
	g.subMu.Lock()
	fns := make([]func(models.Session), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Guard decides whether navigation to dest may proceed. When it may not,
// redirect is the login location carrying dest for resumption.
func (g *Gate) Guard(dest string) (allowed bool, redirect string) {
	if g.IsLoggedIn() {
		return true, ""
	}
	return false, LoginRedirect(dest)
}

// LoginRedirect builds the login location remembering dest.
func LoginRedirect(dest string) string {
	if dest == "" {
		return LoginPath
	}
	return LoginPath + "?" + RedirectParam + "=" + url.QueryEscape(dest)
}

// ResumeTarget returns where to go after a successful login. Only local
// paths are honored.
func ResumeTarget(redirect string) string {
	if redirect == "" || !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") || strings.Contains(redirect, `\`) {
		return DefaultLanding
	}
	return redirect
}
