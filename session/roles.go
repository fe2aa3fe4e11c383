package session

import (
	"context"
	"log"
)

// fetchRole resolves the user's role with a bounded wait (RoleTimeout). On
// success the role is applied and written to the durable cache; on timeout
// or error the previous, possibly cache-seeded, role stays in place and the
// caller is never blocked past the bound.
//
// The generation check discards a resolution that lands after sign-out, so
// a slow lookup cannot resurrect role state for a no-longer-current user.
func (s *State) fetchRole(userID int64, gen int) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RoleTimeout)
	defer cancel()

	role, err := s.cfg.Store.Role(ctx, userID)
	if err != nil {
		log.Printf("Error resolving role for user %d: %v", userID, err)
		return
	}
	if !role.Known() {
		log.Printf("Backend returned unknown role %q for user %d; keeping previous", role, userID)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.role = role
	s.notifyLocked()
	s.mu.Unlock()

	if err := s.cfg.Cache.WriteRole(role); err != nil {
		log.Printf("Error caching role: %v", err)
	}
}
