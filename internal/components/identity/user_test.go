package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
)

func TestMemoryUserRepo_CRUD(t *testing.T) {
	repo := identity.NewMemoryUserRepo()
	ctx := context.Background()

	user := &identity.User{Username: "alice", Role: identity.RoleAdmin}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("ID should be assigned")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt should be assigned")
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("expected ID %q, got %q", user.ID, got.ID)
	}

	got.Username = "alice2"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := repo.GetByUsername(ctx, "alice"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("old username should be gone, got %v", err)
	}
	if _, err := repo.GetByUsername(ctx, "alice2"); err != nil {
		t.Errorf("new username should resolve: %v", err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, user.ID); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryUserRepo_ReturnsCopies(t *testing.T) {
	repo := identity.NewMemoryUserRepo()
	ctx := context.Background()
	_ = repo.Create(ctx, &identity.User{Username: "bob", Role: identity.RoleEditor})

	u, _ := repo.GetByUsername(ctx, "bob")
	u.Role = identity.RoleAdmin

	again, _ := repo.GetByUsername(ctx, "bob")
	if again.Role != identity.RoleEditor {
		t.Errorf("mutating a returned user must not change the repo, role=%q", again.Role)
	}
}

func TestMemoryUserRepo_Errors(t *testing.T) {
	repo := identity.NewMemoryUserRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, &identity.User{Username: "x", Role: "owner"}); !errors.Is(err, identity.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
	_ = repo.Create(ctx, &identity.User{Username: "x", Role: identity.RoleEditor})
	if err := repo.Create(ctx, &identity.User{Username: "x", Role: identity.RoleEditor}); !errors.Is(err, identity.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
	_ = repo.Create(ctx, &identity.User{Username: "y", Role: identity.RoleEditor})
	y, _ := repo.GetByUsername(ctx, "y")
	y.Username = "x"
	if err := repo.Update(ctx, y); !errors.Is(err, identity.ErrUserExists) {
		t.Errorf("rename onto a taken username: expected ErrUserExists, got %v", err)
	}
	if err := repo.Update(ctx, &identity.User{ID: "missing", Role: identity.RoleEditor}); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryUserRepo_ListSorted(t *testing.T) {
	repo := identity.NewMemoryUserRepo()
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		_ = repo.Create(ctx, &identity.User{Username: name, Role: identity.RoleEditor})
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	for i, u := range users {
		if u.Username != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], u.Username)
		}
	}
}

func TestUser_Can(t *testing.T) {
	tests := []struct {
		role string
		cap  string
		want bool
	}{
		{identity.RoleSuperAdmin, identity.CapManageOptions, true},
		{identity.RoleAdmin, identity.CapManageOptions, true},
		{identity.RoleEditor, identity.CapManageOptions, false},
		{identity.RoleEditor, identity.CapRead, true},
		{"unknown", identity.CapRead, false},
	}
	for _, tt := range tests {
		u := &identity.User{Role: tt.role}
		if got := u.Can(tt.cap); got != tt.want {
			t.Errorf("role %q can %q: expected %v, got %v", tt.role, tt.cap, tt.want, got)
		}
	}

	var nilUser *identity.User
	if nilUser.Can(identity.CapRead) {
		t.Error("nil user must have no capabilities")
	}
}

func TestNewID_IsUUIDv7(t *testing.T) {
	id := identity.NewID()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("NewID returned invalid UUID %q: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("expected version 7, got %d", parsed.Version())
	}
	if identity.NewID() == id {
		t.Error("IDs should be unique")
	}
}
