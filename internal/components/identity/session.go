package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

// Session is a signed-in browser or API client.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionRepo stores sessions by token.
type SessionRepo interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error)
	// Get returns ErrSessionNotFound or ErrSessionExpired when the token is unusable.
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int, error)
}

// GenerateToken returns 32 random bytes, base64url encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MemorySessionRepo keeps sessions in memory.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by token
	byUser   map[string][]string // userID -> tokens
}

func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]*Session),
		byUser:   make(map[string][]string),
	}
}

func (r *MemorySessionRepo) Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[token] = s
	r.byUser[userID] = append(r.byUser[userID], token)

	cp := *s
	return &cp, nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.IsExpired() {
		return nil, ErrSessionExpired
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(token)
	return nil
}

func (r *MemorySessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.byUser[userID] {
		delete(r.sessions, token)
	}
	delete(r.byUser, userID)
	return nil
}

func (r *MemorySessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	for token, s := range r.sessions {
		if s.IsExpired() {
			r.remove(token)
			count++
		}
	}
	return count, nil
}

// remove drops token from both indexes. Caller holds r.mu.
func (r *MemorySessionRepo) remove(token string) {
	s, ok := r.sessions[token]
	if !ok {
		return
	}
	tokens := slices.DeleteFunc(r.byUser[s.UserID], func(t string) bool { return t == token })
	if len(tokens) == 0 {
		delete(r.byUser, s.UserID)
	} else {
		r.byUser[s.UserID] = tokens
	}
	delete(r.sessions, token)
}

// SweepExpired deletes expired sessions every interval until ctx is done.
func SweepExpired(ctx context.Context, repo SessionRepo, interval time.Duration, log *slog.Logger) {
	log = logutil.NoopIfNil(log)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				log.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

var _ SessionRepo = (*MemorySessionRepo)(nil)
