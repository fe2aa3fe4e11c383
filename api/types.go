package api

import (
	"context"
	"net/http"

	"parkgate/session"
	"parkgate/types"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string     `json:"token"`
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Role     types.Role `json:"role"`
}

type SessionResponse struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Role     types.Role `json:"role"`
}

type CreateUserRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     types.Role `json:"role"`
}

type CheckRequest struct {
	Plate string `json:"plate"`
}

type sessionKeyType struct{}

var sessionKey sessionKeyType

// SessionFromContext returns the authenticated session placed on the
// request context by the Authenticate middleware.
func SessionFromContext(ctx context.Context) (*session.AuthSession, bool) {
	sess, ok := ctx.Value(sessionKey).(*session.AuthSession)
	return sess, ok
}

func withSession(r *http.Request, sess *session.AuthSession) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sessionKey, sess))
}
