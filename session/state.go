package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"parkgate/localbus"
	"parkgate/types"
)

const (
	defaultAuthTimeout = 15 * time.Second
	defaultRoleTimeout = 10 * time.Second
)

// Config wires a State to its collaborators. Token is the process session
// token from NewToken. Zero timeouts take the defaults (15s auth safety
// timer, 10s role-fetch bound).
type Config struct {
	Token       string
	Auth        AuthProvider
	Store       RowStore
	Cache       RoleCache
	Bus         localbus.Bus
	AuthTimeout time.Duration
	RoleTimeout time.Duration
}

// Snapshot is one consistent view of the session state.
type Snapshot struct {
	Authenticated bool
	UserID        int64
	Username      string
	Role          types.Role
	Loading       bool
	Duplicate     bool
}

// State is the session gate's explicit state container: auth identity,
// resolved role, loading and duplicate flags, with an update feed for the
// rendering layer. It owns the peer coordinator and the registrar; their
// only externally visible effect is the duplicate flag flipping true.
type State struct {
	cfg       Config
	coord     *Coordinator
	registrar *Registrar
	ctx       context.Context
	cancel    context.CancelFunc

	mu        sync.Mutex
	user      *AuthSession
	role      types.Role
	loading   bool
	duplicate bool
	// gen is bumped on every sign-out so async resolutions started under a
	// previous identity are discarded instead of applied.
	gen    int
	subs   []chan Snapshot
	closed bool
}

func NewState(cfg Config) *State {
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.RoleTimeout == 0 {
		cfg.RoleTimeout = defaultRoleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &State{cfg: cfg, loading: true, ctx: ctx, cancel: cancel}
	s.coord = NewCoordinator(cfg.Bus, cfg.Token, s.markDuplicate)
	s.registrar = NewRegistrar(cfg.Store, cfg.Token, func(string) {
		log.Printf("Warning: session token overwritten remotely; this console is now a duplicate")
		s.markDuplicate()
	})
	return s
}

// Init starts the gate: reads the cached role, announces on the local bus,
// arms the safety timer and fetches the current auth session. It returns
// once the background work is started; progress is observable through
// Snapshot and Updates.
func (s *State) Init() error {
	if role, ok := s.cfg.Cache.ReadRole(); ok {
		s.mu.Lock()
		s.role = role
		s.mu.Unlock()
	}
	if err := s.coord.Start(); err != nil {
		return fmt.Errorf("error starting peer coordinator: %v", err)
	}
	go s.safetyTimer()
	go s.bootstrap()
	go s.consumeChanges()
	return nil
}

// safetyTimer ends the loading state after AuthTimeout regardless of what
// the auth fetch did. Degraded but usable beats a spinner on a slow link.
func (s *State) safetyTimer() {
	t := time.NewTimer(s.cfg.AuthTimeout)
	defer t.Stop()
	select {
	case <-t.C:
		s.mu.Lock()
		if s.loading {
			log.Printf("Auth bootstrap did not settle within %v; continuing with cached state", s.cfg.AuthTimeout)
			s.loading = false
			s.notifyLocked()
		}
		s.mu.Unlock()
	case <-s.ctx.Done():
	}
}

func (s *State) bootstrap() {
	sess, err := s.cfg.Auth.CurrentSession(s.ctx)
	if err != nil {
		log.Printf("Error fetching current session: %v", err)
		s.endLoading()
		return
	}
	if sess == nil {
		s.endLoading()
		return
	}
	s.signedIn(sess)
}

// signedIn applies a new identity: identity first, then the bounded role
// fetch, then the registrar sync, then loading ends.
func (s *State) signedIn(sess *AuthSession) {
	s.mu.Lock()
	s.user = sess
	gen := s.gen
	s.notifyLocked()
	s.mu.Unlock()

	s.fetchRole(sess.UserID, gen)
	s.registrar.SyncSession(s.ctx, sess.UserID)
	s.endLoading()
}

func (s *State) consumeChanges() {
	for {
		select {
		case change, ok := <-s.cfg.Auth.Changes():
			if !ok {
				return
			}
			switch change.Event {
			case EventSignedIn:
				if change.Session != nil {
					s.signedIn(change.Session)
				}
			case EventSignedOut:
				s.clearAuth()
			case EventTokenRefreshed:
				// Identity unchanged, nothing to update.
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Reconnect reclaims the session for this console: clears the duplicate
// flag and overwrites the remote token with the local one. The lockout
// surface exposes it as "RETOMAR AQUÍ". Idempotent: any number of calls
// against a healthy backend ends with this console authoritative.
func (s *State) Reconnect(ctx context.Context) {
	s.mu.Lock()
	if s.duplicate {
		s.duplicate = false
		s.notifyLocked()
	}
	user := s.user
	s.mu.Unlock()
	if user != nil {
		s.registrar.SyncSession(ctx, user.UserID)
	}
}

// SignOut ends the session. The provider error is logged, never surfaced:
// local state is cleared either way.
func (s *State) SignOut(ctx context.Context) {
	if err := s.cfg.Auth.SignOut(ctx); err != nil {
		log.Printf("Error signing out: %v", err)
	}
	s.clearAuth()
}

// clearAuth resets to the signed-out state: identity, role, cached role and
// duplicate flag cleared, remote watch released, pending async resolutions
// invalidated.
func (s *State) clearAuth() {
	s.registrar.Close()
	s.mu.Lock()
	s.user = nil
	s.role = types.RoleUnknown
	s.duplicate = false
	s.loading = false
	s.gen++
	s.notifyLocked()
	s.mu.Unlock()
	if err := s.cfg.Cache.Clear(); err != nil {
		log.Printf("Error clearing cached role: %v", err)
	}
}

// Decide runs the route gate against the current state.
func (s *State) Decide(required types.Role) Decision {
	snap := s.Snapshot()
	return Decide(snap.Authenticated, snap.Role, required, snap.Loading)
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		Role:      s.role,
		Loading:   s.loading,
		Duplicate: s.duplicate,
	}
	if s.user != nil {
		snap.Authenticated = true
		snap.UserID = s.user.UserID
		snap.Username = s.user.Username
	}
	return snap
}

// Updates returns a feed of state snapshots. A slow consumer loses
// intermediate snapshots, never the lock.
func (s *State) Updates() <-chan Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 16)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Teardown releases the bus subscription, the remote watch and all update
// feeds. The State is unusable afterwards.
func (s *State) Teardown() {
	s.cancel()
	s.coord.Close()
	s.registrar.Close()
	s.mu.Lock()
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()
}

func (s *State) markDuplicate() {
	s.mu.Lock()
	if !s.duplicate {
		s.duplicate = true
		s.notifyLocked()
	}
	s.mu.Unlock()
}

func (s *State) endLoading() {
	s.mu.Lock()
	if s.loading {
		s.loading = false
		s.notifyLocked()
	}
	s.mu.Unlock()
}

func (s *State) notifyLocked() {
	if s.closed {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
