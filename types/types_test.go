package types

import "testing"

func TestCanonicalPlate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc123", "ABC123"},
		{"AB-12-CD", "AB12CD"},
		{" ab 12 cd ", "AB12CD"},
		{"ABC-123", "ABC123"},
		{"", ""},
		{"  - - ", ""},
	}
	for _, c := range cases {
		if got := CanonicalPlate(c.in); got != c.want {
			t.Errorf("CanonicalPlate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoleKnown(t *testing.T) {
	for _, role := range []Role{RoleAgent, RoleSupervisor, RoleAdmin} {
		if !role.Known() {
			t.Errorf("%q must be a known role", role)
		}
	}
	for _, role := range []Role{RoleUnknown, Role("janitor"), Role("Admin")} {
		if role.Known() {
			t.Errorf("%q must not be a known role", role)
		}
	}
}
