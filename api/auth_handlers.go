package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"parkgate/auth"
	"parkgate/db"
	"parkgate/types"
)

// Login verifies credentials and issues a bearer token. The role rides
// along so consoles can seed their cache without a second round trip.
func Login(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		token, sess, err := svc.Login(r.Context(), req.Username, req.Password)
		if err == auth.ErrInvalidCredentials {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		role, err := userRole(r, sess.UserID)
		if err != nil {
			// Role resolution failing does not block login; the console
			// resolves it on its own schedule.
			role = types.RoleUnknown
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LoginResponse{
			Token:    token,
			UserID:   sess.UserID,
			Username: sess.Username,
			Role:     role,
		})
	}
}

// CurrentSession returns the identity behind the bearer token.
func CurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, err := userRole(r, sess.UserID)
	if err != nil {
		role = types.RoleUnknown
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SessionResponse{
		UserID:   sess.UserID,
		Username: sess.Username,
		Role:     role,
	})
}

// Logout revokes the caller's bearer token.
func Logout(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		svc.Revoke(token)
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateUser creates a user account with a role.
func CreateUser(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" || !req.Role.Known() {
			http.Error(w, "username, password and role are required", http.StatusBadRequest)
			return
		}
		id, err := svc.CreateUser(r.Context(), req.Username, req.Password, req.Role)
		if err != nil {
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	}
}

// ListUsers lists user accounts without their password hashes.
func ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := db.DB.Query(`
		SELECT id, username, role, created_at FROM users ORDER BY username
	`)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		users = append(users, u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

func userRole(r *http.Request, userID int64) (types.Role, error) {
	var roleStr string
	err := db.DB.QueryRowContext(r.Context(),
		`SELECT role FROM users WHERE id = $1`, userID).Scan(&roleStr)
	if err == sql.ErrNoRows {
		return types.RoleUnknown, nil
	}
	if err != nil {
		return types.RoleUnknown, err
	}
	return types.Role(roleStr), nil
}
