package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"parkgate/auth"
	"parkgate/db"
	"parkgate/session"
	"parkgate/types"
)

type RateLimiter struct {
	requests map[string]*ClientRequests
	mu       sync.RWMutex
}

type ClientRequests struct {
	count    int
	lastSeen time.Time
}

const (
	maxRequests    = 100             // Maximum requests per window
	windowDuration = time.Minute * 5 // Window duration
)

var limiter = &RateLimiter{
	requests: make(map[string]*ClientRequests),
}

func RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check for API key in X-Api-Key header
		apiKey := r.Header.Get("X-Api-Key")
		if apiKey != "" && ValidateAPIKey(apiKey) {
			// API key is valid, bypass rate limiting
			next.ServeHTTP(w, r)
			return
		}

		// Get client IP
		clientIP := r.RemoteAddr

		limiter.mu.Lock()
		defer limiter.mu.Unlock()

		// Clean up old entries
		now := time.Now()
		for ip, req := range limiter.requests {
			if now.Sub(req.lastSeen) > windowDuration {
				delete(limiter.requests, ip)
			}
		}

		// Get or create client requests
		client, exists := limiter.requests[clientIP]
		if !exists {
			client = &ClientRequests{
				count:    0,
				lastSeen: now,
			}
			limiter.requests[clientIP] = client
		}

		// Check if window has expired
		if now.Sub(client.lastSeen) > windowDuration {
			client.count = 0
			client.lastSeen = now
		}

		// Check rate limit
		if client.count >= maxRequests {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", client.lastSeen.Add(windowDuration).Format(time.RFC3339))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		// Increment request count
		client.count++
		client.lastSeen = now

		// Set rate limit headers
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(maxRequests-client.count))
		w.Header().Set("X-RateLimit-Reset", client.lastSeen.Add(windowDuration).Format(time.RFC3339))

		next.ServeHTTP(w, r)
	})
}

// Authenticate resolves the bearer token and places the session on the
// request context.
func Authenticate(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			sess, ok := svc.Validate(token)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, withSession(r, sess))
		})
	}
}

// adminOnly gates a handler on the admin area decision: admins and
// supervisors pass, agents are rejected.
func adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		var roleStr string
		err := db.DB.QueryRowContext(r.Context(),
			`SELECT role FROM users WHERE id = $1`, sess.UserID).Scan(&roleStr)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if session.Decide(true, types.Role(roleStr), types.RoleAdmin, false) != session.DecisionAllow {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
