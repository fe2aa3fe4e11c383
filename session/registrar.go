package session

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Registrar detects duplicate sessions across devices using the backend
// user row as the coordination point. The protocol is last writer wins:
// SyncSession overwrites the row's token with this console's, then watches
// the row; a delivered token different from the local one means another
// device has taken over.
//
// Everything here is best effort. Write and watch failures are logged and
// the system degrades to workstation-local duplicate detection; nothing
// blocks login. There is no retry backoff; Reconnect on the state container
// is the manual recovery path.
type Registrar struct {
	store         RowStore
	token         string
	onRemoteToken func(token string)

	mu    sync.Mutex
	watch RowWatch
}

func NewRegistrar(store RowStore, token string, onRemoteToken func(token string)) *Registrar {
	return &Registrar{store: store, token: token, onRemoteToken: onRemoteToken}
}

// SyncSession writes the local token to the user's row and (re)opens the
// row watch. At most one watch is active per registrar; a previous watch is
// released before the new one opens.
func (r *Registrar) SyncSession(ctx context.Context, userID int64) {
	err := r.store.WriteActiveSession(ctx, userID, r.token)
	if errors.Is(err, ErrNoSessionColumn) {
		log.Printf("Warning: no session column on user table; cross-device duplicate detection disabled")
		return
	}
	if err != nil {
		log.Printf("Error syncing session for user %d: %v", userID, err)
		return
	}
	r.resubscribe(userID)
}

func (r *Registrar) resubscribe(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watch != nil {
		r.watch.Close()
		r.watch = nil
	}
	watch, err := r.store.WatchActiveSession(userID)
	if err != nil {
		log.Printf("Error watching session row for user %d: %v", userID, err)
		return
	}
	r.watch = watch
	go r.consume(watch)
}

func (r *Registrar) consume(watch RowWatch) {
	for token := range watch.Tokens() {
		// An empty token is a cleared row, not a takeover.
		if token != "" && token != r.token {
			r.onRemoteToken(token)
		}
	}
}

// Close releases the active watch, if any. Idempotent.
func (r *Registrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watch != nil {
		r.watch.Close()
		r.watch = nil
	}
}
