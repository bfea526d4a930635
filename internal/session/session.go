package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"dmchat/internal/domain"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

// Session is the authenticated user and its bearer token.
type Session struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TokenSource supplies the bearer token for outgoing requests.
type TokenSource interface {
	Token() (string, error)
}

// Store persists a session between runs.
type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// Claims are the unverified claims the client reads from an access token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// ParseClaims reads the subject and expiry of a JWT without verifying its
// signature; only the server can verify it. Opaque tokens yield zero claims.
func ParseClaims(token string) (Claims, bool) {
	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &registered); err != nil {
		return Claims{}, false
	}
	claims := Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, true
}

// Manager owns the lifecycle of the current session: it starts on login,
// is restored from the store on startup and ends on logout or rejection.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	current *Session
	now     func() time.Time
	log     *logger.Logger
}

func NewManager(store Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{store: store, now: time.Now, log: log.Named("session")}
}

// Begin starts a session for token and persists it.
func (m *Manager) Begin(ctx context.Context, token string, user domain.User) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("begin session: %w", dmchat_errors.ErrNoSession)
	}
	s := Session{User: user, Token: token}
	if claims, ok := ParseClaims(token); ok {
		s.ExpiresAt = claims.ExpiresAt
		if s.User.Username == "" {
			s.User.Username = claims.Subject
		}
	} else {
		m.log.Logger.Debug("opaque access token, expiry unknown")
	}
	if s.Expired(m.now()) {
		return Session{}, fmt.Errorf("begin session: %w", dmchat_errors.ErrSessionExpired)
	}

	if err := m.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()

	m.log.Logger.Info("session started", zap.String("username", s.User.Username), zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

// Restore loads the persisted session. An expired session is cleared.
func (m *Manager) Restore(ctx context.Context) (Session, error) {
	s, err := m.store.Load(ctx)
	if err != nil {
		return Session{}, err
	}
	if s.Token == "" {
		return Session{}, dmchat_errors.ErrNoSession
	}
	if s.Expired(m.now()) {
		_ = m.Clear(ctx)
		return Session{}, dmchat_errors.ErrSessionExpired
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return s, nil
}

// SetUser replaces the identity of the current session.
func (m *Manager) SetUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return dmchat_errors.ErrNoSession
	}
	m.current.User = user
	s := *m.current
	m.mu.Unlock()

	return m.store.Save(ctx, s)
}

// Clear ends the session in memory and in the store.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.log.Logger.Info("session cleared")
	return nil
}

func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Token implements TokenSource.
func (m *Manager) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", dmchat_errors.ErrNoSession
	}
	if m.current.Expired(m.now()) {
		return "", dmchat_errors.ErrSessionExpired
	}
	return m.current.Token, nil
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", dmchat_errors.ErrNoSession
	}
	return string(t), nil
}
