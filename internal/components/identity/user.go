// Package identity provides admin users, capabilities, password hashing and
// login sessions.
package identity

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidRole          = errors.New("invalid role")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSuperAdminProtected  = errors.New("super admin cannot be deleted")
	ErrSuperAdminRoleChange = errors.New("super admin role cannot be changed")
)

const (
	RoleEditor     = "editor"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Capabilities checked by the HTTP layer.
const (
	CapManageOptions = "manage_options"
	CapRead          = "read"
)

var roleCapabilities = map[string][]string{
	RoleEditor:     {CapRead},
	RoleAdmin:      {CapRead, CapManageOptions},
	RoleSuperAdmin: {CapRead, CapManageOptions},
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := roleCapabilities[role]
	return ok
}

// User is an account allowed to sign in to the admin screens.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Can reports whether the user's role grants capability.
func (u *User) Can(capability string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roleCapabilities[u.Role], capability)
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// UserRepo stores admin users.
type UserRepo interface {
	// Create stores a new user, assigning ID and CreatedAt when empty.
	// Returns ErrUserExists if the username is taken.
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	// List returns all users ordered by username.
	List(ctx context.Context) ([]*User, error)
}

// NewID returns a time-ordered UUIDv7 string.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// MemoryUserRepo keeps users in memory, indexed by username.
type MemoryUserRepo struct {
	mu         sync.RWMutex
	users      map[string]*User  // by ID
	byUsername map[string]string // username -> ID
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryUserRepo) Create(ctx context.Context, user *User) error {
	if !ValidRole(user.Role) {
		return ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return ErrUserExists
	}
	if user.ID == "" {
		user.ID = NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	u := *user
	r.users[u.ID] = &u
	r.byUsername[u.Username] = u.ID
	return nil
}

func (r *MemoryUserRepo) Get(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *MemoryUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *r.users[id]
	return &u, nil
}

func (r *MemoryUserRepo) Update(ctx context.Context, user *User) error {
	if !ValidRole(user.Role) {
		return ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	if existing.Role == RoleSuperAdmin && user.Role != RoleSuperAdmin {
		return ErrSuperAdminRoleChange
	}
	if existing.Username != user.Username {
		if _, taken := r.byUsername[user.Username]; taken {
			return ErrUserExists
		}
		delete(r.byUsername, existing.Username)
		r.byUsername[user.Username] = user.ID
	}

	u := *user
	r.users[u.ID] = &u
	return nil
}

func (r *MemoryUserRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if user.Role == RoleSuperAdmin {
		return ErrSuperAdminProtected
	}
	delete(r.byUsername, user.Username)
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepo) List(ctx context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*User, 0, len(r.users))
	for _, user := range r.users {
		u := *user
		result = append(result, &u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

var _ UserRepo = (*MemoryUserRepo)(nil)
