// Package auth authenticates users against the users table and tracks the
// opaque bearer tokens issued to them. Passwords are bcrypt hashes; tokens
// are held in memory and die with the process.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parkgate/db"
	"parkgate/session"
	"parkgate/types"
)

// ErrInvalidCredentials is returned when the username or password is wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service checks credentials and manages issued tokens.
type Service struct {
	mu     sync.Mutex
	tokens map[string]*session.AuthSession
}

func NewService() *Service {
	return &Service{tokens: make(map[string]*session.AuthSession)}
}

// Login verifies the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *session.AuthSession, error) {
	var (
		id   int64
		hash string
	)
	err := db.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE username = $1`, username).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("error looking up user: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	sess := &session.AuthSession{UserID: id, Username: username}
	s.mu.Lock()
	s.tokens[token] = sess
	s.mu.Unlock()
	return token, sess, nil
}

// Validate resolves a bearer token to its session.
func (s *Service) Validate(token string) (*session.AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	return sess, ok
}

// Revoke invalidates a bearer token. Unknown tokens are a no-op.
func (s *Service) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// CreateUser inserts a user with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, username, password string, role types.Role) (int64, error) {
	if !role.Known() {
		return 0, fmt.Errorf("invalid role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("error hashing password: %v", err)
	}
	var id int64
	err = db.DB.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		username, string(hash), string(role)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error creating user: %v", err)
	}
	return id, nil
}
