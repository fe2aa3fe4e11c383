package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"parkgate/session"
	"parkgate/types"
)

// UserStore exposes the users table to the session gate: point role read,
// session-token write and a row-scoped change watch over LISTEN/NOTIFY.
type UserStore struct {
	db       *sql.DB
	connInfo string
}

var _ session.RowStore = (*UserStore)(nil)

// NewUserStore wraps the shared connection. Connect or InitDB must have run.
func NewUserStore() *UserStore {
	return &UserStore{db: DB, connInfo: ConnString()}
}

func (s *UserStore) Role(ctx context.Context, userID int64) (types.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		return types.RoleUnknown, err
	}
	return types.Role(role), nil
}

// WriteActiveSession overwrites the user's session token. A missing
// active_session column maps to session.ErrNoSessionColumn so the caller
// can degrade instead of fail.
func (s *UserStore) WriteActiveSession(ctx context.Context, userID int64, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET active_session = $1 WHERE id = $2`, token, userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42703" {
			return session.ErrNoSessionColumn
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// WatchActiveSession opens a LISTEN connection on the user_sessions channel
// and filters notifications down to the one user row.
func (s *UserStore) WatchActiveSession(userID int64) (session.RowWatch, error) {
	listener := pq.NewListener(s.connInfo, 10*time.Second, time.Minute, nil)
	if err := listener.Listen("user_sessions"); err != nil {
		listener.Close()
		return nil, fmt.Errorf("error listening on user_sessions: %v", err)
	}
	w := &rowWatch{
		listener: listener,
		tokens:   make(chan string, 8),
		done:     make(chan struct{}),
	}
	go w.run(userID)
	return w, nil
}

type rowWatch struct {
	listener *pq.Listener
	tokens   chan string
	done     chan struct{}
	once     sync.Once
	closeErr error
}

// sessionNotification is the trigger payload from notify_user_session.
type sessionNotification struct {
	UserID        int64   `json:"user_id"`
	ActiveSession *string `json:"active_session"`
}

func (w *rowWatch) run(userID int64) {
	defer close(w.tokens)
	for {
		select {
		case n, ok := <-w.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// lib/pq sends nil after a connection re-establish; the
				// next real notification follows on its own.
				continue
			}
			var payload sessionNotification
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				log.Printf("Error decoding session notification: %v", err)
				continue
			}
			if payload.UserID != userID {
				continue
			}
			token := ""
			if payload.ActiveSession != nil {
				token = *payload.ActiveSession
			}
			select {
			case w.tokens <- token:
			case <-w.done:
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *rowWatch) Tokens() <-chan string {
	return w.tokens
}

func (w *rowWatch) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.closeErr = w.listener.Close()
	})
	return w.closeErr
}
