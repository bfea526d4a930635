package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

const DefaultTTL = 4 * time.Second

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification is a transient, non-blocking message for the user.
type Notification struct {
	ID        string
	Level     Level
	Text      string
	ExpiresAt time.Time
}

// Notifier keeps the notifications that have not expired yet.
type Notifier struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	items   []Notification
	changes chan struct{}
	log     *logger.Logger
}

func New(ttl time.Duration, l *logger.Logger) *Notifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Notifier{
		ttl:     ttl,
		now:     time.Now,
		changes: make(chan struct{}, 1),
		log:     l.Named("notify"),
	}
}

// Add shows text for the notifier's TTL and returns its id.
func (n *Notifier) Add(level Level, text string) string {
	item := Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Text:      text,
		ExpiresAt: n.now().Add(n.ttl),
	}

	n.mu.Lock()
	n.items = append(n.pruneLocked(), item)
	n.mu.Unlock()

	n.signal()
	return item.ID
}

func (n *Notifier) Success(text string) string {
	return n.Add(LevelSuccess, text)
}

func (n *Notifier) Dismiss(id string) {
	n.mu.Lock()
	items := n.pruneLocked()
	kept := items[:0]
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	n.items = kept
	n.mu.Unlock()

	n.signal()
}

// Active returns the unexpired notifications, oldest first.
func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = n.pruneLocked()
	out := make([]Notification, len(n.items))
	copy(out, n.items)
	return out
}

// Changes signals additions and dismissals. Signals coalesce; expiry is
// not signalled.
func (n *Notifier) Changes() <-chan struct{} {
	return n.changes
}

// Error reports a failed operation. A lost session only gets logged, the
// caller sends the user back to login instead. Rejected credentials on
// login or register are shown like any other domain error.
func (n *Notifier) Error(op string, err error) {
	if err == nil {
		return
	}
	kind := dmchat_errors.Classify(err)
	n.log.Logger.Warn("operation failed",
		zap.String("op", op),
		zap.Stringer("kind", kind),
		zap.Error(err))
	if kind == dmchat_errors.KindAuth && !credentialsOp(op) {
		return
	}
	n.Add(LevelError, dmchat_errors.UserMessage(op, err))
}

func credentialsOp(op string) bool {
	return op == dmchat_errors.OpLogin || op == dmchat_errors.OpRegister
}

func (n *Notifier) pruneLocked() []Notification {
	now := n.now()
	kept := n.items[:0]
	for _, item := range n.items {
		if now.Before(item.ExpiresAt) {
			kept = append(kept, item)
		}
	}
	return kept
}

func (n *Notifier) signal() {
	select {
	case n.changes <- struct{}{}:
	default:
	}
}
