package auth

import (
	"context"
	"log"
	"sync"

	"parkgate/session"
)

// Console is the auth provider for one gate console process: Service plus
// the notion of "this console's current session" and a change feed. It
// implements session.AuthProvider; a fresh console starts signed out, so
// CurrentSession is always immediate and definite.
type Console struct {
	svc *Service

	mu      sync.Mutex
	current *session.AuthSession
	token   string
	changes chan session.AuthChange
}

var _ session.AuthProvider = (*Console)(nil)

func NewConsole(svc *Service) *Console {
	return &Console{svc: svc, changes: make(chan session.AuthChange, 8)}
}

func (c *Console) CurrentSession(ctx context.Context) (*session.AuthSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

func (c *Console) Changes() <-chan session.AuthChange {
	return c.changes
}

// Login authenticates and makes the session current; the session gate
// reacts through the change feed.
func (c *Console) Login(ctx context.Context, username, password string) error {
	token, sess, err := c.svc.Login(ctx, username, password)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = sess
	c.token = token
	c.mu.Unlock()
	c.emit(session.AuthChange{Event: session.EventSignedIn, Session: sess})
	return nil
}

func (c *Console) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.current = nil
	c.token = ""
	c.mu.Unlock()
	if token != "" {
		c.svc.Revoke(token)
	}
	c.emit(session.AuthChange{Event: session.EventSignedOut})
	return nil
}

func (c *Console) emit(change session.AuthChange) {
	select {
	case c.changes <- change:
	default:
		log.Printf("Warning: auth change feed full, dropping %s", change.Event)
	}
}
