// Package session decides, for one gate console process, whether it may
// keep operating as the authenticated user. Two independent mechanisms feed
// a single duplicate flag: the peer coordinator (other consoles on the same
// workstation, via the local bus) and the registrar (other devices, via the
// backend user row). A pure decision table routes users between the admin
// and agent areas.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"parkgate/types"
)

// ErrNoSessionColumn is returned by RowStore.WriteActiveSession when the
// backing user table has no session-token column. The registrar treats it
// as a degradation, not a failure: cross-device duplicate detection is
// disabled, login proceeds.
var ErrNoSessionColumn = errors.New("user table has no active_session column")

// NewToken mints the per-process session token. Minted once at start,
// immutable for the process lifetime, never persisted.
func NewToken() string {
	return uuid.NewString()
}

// AuthSession identifies an authenticated user.
type AuthSession struct {
	UserID   int64
	Username string
}

// AuthEvent names a change delivered on the auth provider's feed.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthChange is one event on the auth provider's change feed.
type AuthChange struct {
	Event   AuthEvent
	Session *AuthSession
}

// AuthProvider is the external authentication collaborator. CurrentSession
// must return a definite answer (nil session or error) rather than hang, so
// the safety timer is not the only path to a settled state.
type AuthProvider interface {
	CurrentSession(ctx context.Context) (*AuthSession, error)
	Changes() <-chan AuthChange
	SignOut(ctx context.Context) error
}

// RowStore is the backend user-record store: point role read, session-token
// write and a row-scoped change watch.
type RowStore interface {
	Role(ctx context.Context, userID int64) (types.Role, error)
	WriteActiveSession(ctx context.Context, userID int64, token string) error
	WatchActiveSession(userID int64) (RowWatch, error)
}

// RowWatch delivers successive active_session values for one user row.
// Close releases the watch; Tokens is closed afterwards.
type RowWatch interface {
	Tokens() <-chan string
	Close() error
}

// RoleCache is the durable workstation-local role cache, read optimistically
// at startup and cleared on sign-out.
type RoleCache interface {
	ReadRole() (types.Role, bool)
	WriteRole(role types.Role) error
	Clear() error
}
