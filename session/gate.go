package session

import "parkgate/types"

// Decision is the outcome of the role/route gate.
type Decision int

const (
	// DecisionSuspend renders nothing while auth state is still loading.
	DecisionSuspend Decision = iota
	DecisionAllow
	DecisionRedirectLogin
	DecisionRedirectAdmin
	DecisionRedirectAgent
)

func (d Decision) String() string {
	switch d {
	case DecisionSuspend:
		return "suspend"
	case DecisionAllow:
		return "allow"
	case DecisionRedirectLogin:
		return "redirect " + d.Path()
	case DecisionRedirectAdmin:
		return "redirect " + d.Path()
	case DecisionRedirectAgent:
		return "redirect " + d.Path()
	}
	return "unknown"
}

// Path returns the redirect target, or "" for non-redirect decisions.
func (d Decision) Path() string {
	switch d {
	case DecisionRedirectLogin:
		return "/login"
	case DecisionRedirectAdmin:
		return "/admin"
	case DecisionRedirectAgent:
		return "/agent"
	}
	return ""
}

// Decide maps auth state to a routing decision. It is deliberately
// permissive: while the role is not yet resolved it allows rather than
// locks out, so a console on a degraded network stays usable. Strict
// denial happens only once a conflicting role is positively known.
func Decide(authenticated bool, role, required types.Role, loading bool) Decision {
	if loading {
		return DecisionSuspend
	}
	if !authenticated {
		return DecisionRedirectLogin
	}
	// Supervisors hold the admin area alongside admins.
	if required == types.RoleAdmin && (role == types.RoleAdmin || role == types.RoleSupervisor) {
		return DecisionAllow
	}
	if !role.Known() {
		return DecisionAllow
	}
	if role != required {
		if role == types.RoleAdmin || role == types.RoleSupervisor {
			return DecisionRedirectAdmin
		}
		return DecisionRedirectAgent
	}
	return DecisionAllow
}
