package identity

import (
	"context"
	"strings"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
)

// MaxLoginFailures is the number of failed logins per username allowed
// within cache.TTLLoginWindow.
const MaxLoginFailures = 5

const lockoutKeyPrefix = "login_failures:"

// Lockout counts failed logins per username in a fixed window. Every login
// endpoint shares one Lockout so a username locked on one is locked on all.
// A nil Lockout or one without a counter never locks.
type Lockout struct {
	counter cache.Counter
	max     int64
	window  time.Duration
}

// NewLockout returns a Lockout with the default limit and window.
func NewLockout(counter cache.Counter) *Lockout {
	return &Lockout{counter: counter, max: MaxLoginFailures, window: cache.TTLLoginWindow}
}

func lockoutKey(username string) string {
	return lockoutKeyPrefix + strings.ToLower(strings.TrimSpace(username))
}

// Locked reports whether username has used up its failures. Counter errors
// leave the username unlocked.
func (l *Lockout) Locked(ctx context.Context, username string) bool {
	if l == nil || l.counter == nil {
		return false
	}
	n, err := l.counter.GetCount(ctx, lockoutKey(username))
	return err == nil && n >= l.max
}

// Fail records one failed login for username.
func (l *Lockout) Fail(ctx context.Context, username string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	_, _, err := l.counter.Increment(ctx, lockoutKey(username), 1, l.window)
	return err
}

// Clear forgets the failures of username after a successful login.
func (l *Lockout) Clear(ctx context.Context, username string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	return l.counter.Reset(ctx, lockoutKey(username))
}
