package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

// Bootstrap provisions the initial super admin.
type Bootstrap struct {
	repo   UserRepo
	hasher *Hasher
	log    *slog.Logger
}

func NewBootstrap(repo UserRepo, hasher *Hasher, log *slog.Logger) *Bootstrap {
	return &Bootstrap{repo: repo, hasher: hasher, log: logutil.NoopIfNil(log)}
}

// EnsureSuperAdmin creates the super admin when none exists. An empty
// username defaults to "admin"; an empty password is generated and logged
// once. When a super admin already exists its password is rotated only if
// password is non-empty.
func (b *Bootstrap) EnsureSuperAdmin(ctx context.Context, username, password string) (*User, error) {
	if username == "" {
		username = "admin"
	}

	users, err := b.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if !u.IsSuperAdmin() {
			continue
		}
		if password != "" {
			hash, err := b.hasher.Hash(password)
			if err != nil {
				return nil, err
			}
			u.PasswordHash = hash
			if err := b.repo.Update(ctx, u); err != nil {
				return nil, err
			}
			b.log.Info("super admin password rotated", "username", u.Username)
		}
		return u, nil
	}

	generated := password == ""
	if generated {
		password, err = randomPassword()
		if err != nil {
			return nil, err
		}
	}
	hash, err := b.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	admin := &User{
		Username:     username,
		DisplayName:  "Site Administrator",
		PasswordHash: hash,
		Role:         RoleSuperAdmin,
	}
	if err := b.repo.Create(ctx, admin); err != nil {
		return nil, err
	}

	if generated {
		b.log.Info("super admin created with generated password",
			"username", username, "password", password, "user_id", admin.ID)
	} else {
		b.log.Info("super admin created", "username", username, "user_id", admin.ID)
	}
	return admin, nil
}

func randomPassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
