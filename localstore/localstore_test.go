package localstore

import (
	"path/filepath"
	"testing"

	"parkgate/types"
)

func TestRoleRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, ok := store.ReadRole(); ok {
		t.Fatal("fresh cache must be empty")
	}

	if err := store.WriteRole(types.RoleSupervisor); err != nil {
		t.Fatalf("WriteRole: %v", err)
	}
	role, ok := store.ReadRole()
	if !ok || role != types.RoleSupervisor {
		t.Fatalf("ReadRole = %q, %v; want supervisor", role, ok)
	}

	// A second write overwrites, not duplicates.
	if err := store.WriteRole(types.RoleAgent); err != nil {
		t.Fatalf("WriteRole: %v", err)
	}
	if role, _ := store.ReadRole(); role != types.RoleAgent {
		t.Fatalf("ReadRole after overwrite = %q, want agent", role)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := store.ReadRole(); ok {
		t.Fatal("cleared cache must be empty")
	}
}

func TestRoleSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.WriteRole(types.RoleAdmin); err != nil {
		t.Fatalf("WriteRole: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	role, ok := reopened.ReadRole()
	if !ok || role != types.RoleAdmin {
		t.Fatalf("ReadRole after reopen = %q, %v; want admin", role, ok)
	}
}

func TestUnknownStoredValueIsIgnored(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.WriteRole(types.Role("janitor")); err != nil {
		t.Fatalf("WriteRole: %v", err)
	}
	if role, ok := store.ReadRole(); ok {
		t.Fatalf("unrecognized stored role %q must read as absent", role)
	}
}
