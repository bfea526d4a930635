package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"dmchat/internal/session"
	dmchat_errors "dmchat/pkg/errors"
)

// Key pattern: dmchat:session:{profile}. The TTL follows the token expiry
// when known, otherwise the configured default.

var _ session.Store = (*SessionStore)(nil)

// SessionStore keeps the client session in Redis so several terminals of
// the same profile share one login.
type SessionStore struct {
	client  *goredis.Client
	profile string
	ttl     time.Duration
	now     func() time.Time
}

func NewSessionStore(client *goredis.Client, profile string, ttl time.Duration) *SessionStore {
	if profile == "" {
		profile = "default"
	}
	return &SessionStore{client: client, profile: profile, ttl: ttl, now: time.Now}
}

func (s *SessionStore) key() string {
	return fmt.Sprintf("dmchat:session:%s", s.profile)
}

// ttlFor returns how long sess should live in Redis.
func (s *SessionStore) ttlFor(sess session.Session) time.Duration {
	if sess.ExpiresAt.IsZero() {
		return s.ttl
	}
	remaining := sess.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}

func (s *SessionStore) Load(ctx context.Context) (session.Session, error) {
	data, err := s.client.Get(ctx, s.key()).Result()
	if err == goredis.Nil {
		return session.Session{}, dmchat_errors.ErrNoSession
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(), data, s.ttlFor(sess)).Err()
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key()).Err()
}
