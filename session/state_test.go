package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parkgate/localbus"
	"parkgate/types"
)

type stubAuth struct {
	mu       sync.Mutex
	sess     *AuthSession
	block    bool
	changes  chan AuthChange
	signOuts int
}

func newStubAuth(sess *AuthSession) *stubAuth {
	return &stubAuth{sess: sess, changes: make(chan AuthChange, 8)}
}

func (a *stubAuth) CurrentSession(ctx context.Context) (*AuthSession, error) {
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess, nil
}

func (a *stubAuth) Changes() <-chan AuthChange {
	return a.changes
}

func (a *stubAuth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOuts++
	a.sess = nil
	return nil
}

type stubWatch struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

func (w *stubWatch) Tokens() <-chan string { return w.ch }

func (w *stubWatch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	return nil
}

func (w *stubWatch) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type stubStore struct {
	mu        sync.Mutex
	role      types.Role
	roleDelay time.Duration
	writeErr  error
	token     string
	writes    int
	watches   []*stubWatch
}

func (s *stubStore) Role(ctx context.Context, userID int64) (types.Role, error) {
	if s.roleDelay > 0 {
		select {
		case <-time.After(s.roleDelay):
		case <-ctx.Done():
			return types.RoleUnknown, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, nil
}

func (s *stubStore) WriteActiveSession(ctx context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.token = token
	s.writes++
	return nil
}

func (s *stubStore) WatchActiveSession(userID int64) (RowWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &stubWatch{ch: make(chan string, 8)}
	s.watches = append(s.watches, w)
	return w, nil
}

func (s *stubStore) remoteToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *stubStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// push delivers a token on the most recent open watch.
func (s *stubStore) push(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.watches) - 1; i >= 0; i-- {
		if !s.watches[i].isClosed() {
			s.watches[i].ch <- token
			return
		}
	}
}

func (s *stubStore) openWatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.watches {
		if !w.isClosed() {
			n++
		}
	}
	return n
}

type stubCache struct {
	mu      sync.Mutex
	role    types.Role
	has     bool
	cleared bool
}

func (c *stubCache) ReadRole() (types.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role, c.has
}

func (c *stubCache) WriteRole(role types.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
	c.has = true
	c.cleared = false
	return nil
}

func (c *stubCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = types.RoleUnknown
	c.has = false
	c.cleared = true
	return nil
}

func (c *stubCache) wasCleared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

type stateFixture struct {
	state *State
	auth  *stubAuth
	store *stubStore
	cache *stubCache
	token string
}

func newFixture(t *testing.T, auth *stubAuth, store *stubStore, cache *stubCache) *stateFixture {
	t.Helper()
	bus := localbus.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	token := NewToken()
	st := NewState(Config{
		Token:       token,
		Auth:        auth,
		Store:       store,
		Cache:       cache,
		Bus:         bus,
		AuthTimeout: 300 * time.Millisecond,
		RoleTimeout: 500 * time.Millisecond,
	})
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(st.Teardown)
	return &stateFixture{state: st, auth: auth, store: store, cache: cache, token: token}
}

func TestBootstrapSignedIn(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleSupervisor}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "bootstrap to settle", func() bool {
		snap := f.state.Snapshot()
		return snap.Authenticated && !snap.Loading && snap.Role == types.RoleSupervisor
	})

	if got := store.remoteToken(); got != f.token {
		t.Errorf("remote token = %q, want local token %q", got, f.token)
	}
	if store.openWatches() != 1 {
		t.Errorf("open watches = %d, want 1", store.openWatches())
	}
	if role, ok := f.cache.ReadRole(); !ok || role != types.RoleSupervisor {
		t.Errorf("cached role = %q (%v), want supervisor", role, ok)
	}
}

func TestBootstrapSignedOut(t *testing.T) {
	f := newFixture(t, newStubAuth(nil), &stubStore{}, &stubCache{})

	waitFor(t, "loading to end", func() bool { return !f.state.Snapshot().Loading })
	snap := f.state.Snapshot()
	if snap.Authenticated {
		t.Error("no session means not authenticated")
	}
	if f.store.writeCount() != 0 {
		t.Error("no session write expected without a user")
	}
}

func TestCachedRoleSeedsState(t *testing.T) {
	auth := newStubAuth(nil)
	auth.block = true
	cache := &stubCache{role: types.RoleAdmin, has: true}
	f := newFixture(t, auth, &stubStore{}, cache)

	waitFor(t, "cached role to apply", func() bool {
		return f.state.Snapshot().Role == types.RoleAdmin
	})
}

func TestSafetyTimerEndsLoading(t *testing.T) {
	auth := newStubAuth(nil)
	auth.block = true
	f := newFixture(t, auth, &stubStore{}, &stubCache{})

	start := time.Now()
	waitFor(t, "safety timer to end loading", func() bool { return !f.state.Snapshot().Loading })
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("loading ended after %v, before the safety timer", elapsed)
	}
	if f.state.Snapshot().Authenticated {
		t.Error("user identity must stay empty when auth never answered")
	}
}

func TestRemoteOverwriteMarksDuplicate(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleAgent}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "bootstrap to settle", func() bool { return !f.state.Snapshot().Loading })

	// Delivering this console's own token changes nothing.
	store.push(f.token)
	settle()
	if f.state.Snapshot().Duplicate {
		t.Fatal("own token must not mark the console duplicate")
	}

	store.push("token-from-another-device")
	waitFor(t, "duplicate flag", func() bool { return f.state.Snapshot().Duplicate })

	// The flag does not clear on its own.
	store.push(f.token)
	settle()
	if !f.state.Snapshot().Duplicate {
		t.Error("duplicate flag must persist until reclaim or sign-out")
	}
}

func TestReconnectIsIdempotent(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleAgent}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "bootstrap to settle", func() bool { return !f.state.Snapshot().Loading })
	store.push("token-from-another-device")
	waitFor(t, "duplicate flag", func() bool { return f.state.Snapshot().Duplicate })

	for i := 0; i < 3; i++ {
		f.state.Reconnect(context.Background())
	}

	snap := f.state.Snapshot()
	if snap.Duplicate {
		t.Error("reclaim must clear the duplicate flag")
	}
	if got := store.remoteToken(); got != f.token {
		t.Errorf("remote token = %q, want local token %q", got, f.token)
	}
	if store.openWatches() != 1 {
		t.Errorf("open watches = %d, want exactly 1 after repeated reclaims", store.openWatches())
	}
}

func TestSignOutClearsEverything(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleSupervisor}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "bootstrap to settle", func() bool {
		snap := f.state.Snapshot()
		return snap.Authenticated && !snap.Loading
	})
	store.push("token-from-another-device")
	waitFor(t, "duplicate flag", func() bool { return f.state.Snapshot().Duplicate })

	f.state.SignOut(context.Background())

	snap := f.state.Snapshot()
	if snap.Authenticated {
		t.Error("sign-out must clear the user identity")
	}
	if snap.Role != types.RoleUnknown {
		t.Errorf("sign-out must clear the role, got %q", snap.Role)
	}
	if snap.Duplicate {
		t.Error("sign-out must clear the duplicate flag")
	}
	if !f.cache.wasCleared() {
		t.Error("sign-out must clear the durable role cache")
	}
	if store.openWatches() != 0 {
		t.Errorf("open watches = %d, want 0 after sign-out", store.openWatches())
	}
	if auth.signOuts != 1 {
		t.Errorf("provider sign-outs = %d, want 1", auth.signOuts)
	}
}

func TestChangeFeedSignIn(t *testing.T) {
	auth := newStubAuth(nil)
	store := &stubStore{role: types.RoleAgent}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "initial bootstrap", func() bool { return !f.state.Snapshot().Loading })

	auth.changes <- AuthChange{
		Event:   EventSignedIn,
		Session: &AuthSession{UserID: 12, Username: "turner"},
	}
	waitFor(t, "sign-in via change feed", func() bool {
		snap := f.state.Snapshot()
		return snap.Authenticated && snap.UserID == 12 && snap.Role == types.RoleAgent
	})
	if got := store.remoteToken(); got != f.token {
		t.Errorf("remote token = %q, want local token %q", got, f.token)
	}
}

func TestStaleRoleResolutionDiscardedAfterSignOut(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleAdmin, roleDelay: 150 * time.Millisecond}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "identity to apply", func() bool { return f.state.Snapshot().Authenticated })
	f.state.SignOut(context.Background())

	// Let the delayed role lookup land; it belongs to the old generation.
	time.Sleep(300 * time.Millisecond)
	if role := f.state.Snapshot().Role; role != types.RoleUnknown {
		t.Errorf("stale role resolution resurrected role %q after sign-out", role)
	}
}

func TestSchemaMismatchDegradesGracefully(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleAgent, writeErr: ErrNoSessionColumn}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "bootstrap to settle", func() bool {
		snap := f.state.Snapshot()
		return snap.Authenticated && !snap.Loading
	})
	if store.openWatches() != 0 {
		t.Error("no watch must open when the session column is missing")
	}
	if f.state.Snapshot().Duplicate {
		t.Error("schema mismatch must not mark the console duplicate")
	}
}

func TestWriteFailureDoesNotBlockLogin(t *testing.T) {
	auth := newStubAuth(&AuthSession{UserID: 7, Username: "porter"})
	store := &stubStore{role: types.RoleAgent, writeErr: errors.New("backend down")}
	f := newFixture(t, auth, store, &stubCache{})

	waitFor(t, "bootstrap to settle", func() bool {
		snap := f.state.Snapshot()
		return snap.Authenticated && !snap.Loading && snap.Role == types.RoleAgent
	})
}
