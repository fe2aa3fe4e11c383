package session

import (
	"testing"

	"parkgate/types"
)

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		role          types.Role
		required      types.Role
		loading       bool
		want          Decision
	}{
		{"loading suspends", true, types.RoleAdmin, types.RoleAdmin, true, DecisionSuspend},
		{"unauthenticated redirects to login", false, types.RoleAdmin, types.RoleAdmin, false, DecisionRedirectLogin},
		{"admin allowed on admin", true, types.RoleAdmin, types.RoleAdmin, false, DecisionAllow},
		{"supervisor allowed on admin", true, types.RoleSupervisor, types.RoleAdmin, false, DecisionAllow},
		{"agent redirected from admin", true, types.RoleAgent, types.RoleAdmin, false, DecisionRedirectAgent},
		{"unknown role allowed on admin", true, types.RoleUnknown, types.RoleAdmin, false, DecisionAllow},
		{"agent allowed on agent", true, types.RoleAgent, types.RoleAgent, false, DecisionAllow},
		{"admin redirected from agent", true, types.RoleAdmin, types.RoleAgent, false, DecisionRedirectAdmin},
		{"supervisor redirected from agent", true, types.RoleSupervisor, types.RoleAgent, false, DecisionRedirectAdmin},
		{"unknown role allowed on agent", true, types.RoleUnknown, types.RoleAgent, false, DecisionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.authenticated, tt.role, tt.required, tt.loading)
			if got != tt.want {
				t.Errorf("Decide(%v, %q, %q, %v) = %v, want %v",
					tt.authenticated, tt.role, tt.required, tt.loading, got, tt.want)
			}
		})
	}
}

func TestDecisionPath(t *testing.T) {
	if got := DecisionRedirectLogin.Path(); got != "/login" {
		t.Errorf("login path = %q, want /login", got)
	}
	if got := DecisionRedirectAdmin.Path(); got != "/admin" {
		t.Errorf("admin path = %q, want /admin", got)
	}
	if got := DecisionRedirectAgent.Path(); got != "/agent" {
		t.Errorf("agent path = %q, want /agent", got)
	}
	if got := DecisionAllow.Path(); got != "" {
		t.Errorf("allow path = %q, want empty", got)
	}
}
