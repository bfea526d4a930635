package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/internal/events"
	"dmchat/internal/session"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Sink receives what a subscription reads. Calls come from the subscription's
// read goroutine, one at a time, in receive order.
type Sink interface {
	Event(ev events.Event)
	State(connected bool)
}

// Dialer opens live subscriptions to /ws/chat/{chatId}.
type Dialer struct {
	baseURL string
	tokens  session.TokenSource
	dialer  *websocket.Dialer
	log     *Logger
}

func NewDialer(baseURL string, tokens session.TokenSource, l *logger.Logger) *Dialer {
	return &Dialer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: NewLogger(l),
	}
}

// URL returns the live channel address of chatID. The token query parameter
// is added when a session exists.
func (d *Dialer) URL(chatID int64) string {
	u := d.baseURL + "/ws/chat/" + strconv.FormatInt(chatID, 10)
	if d.tokens == nil {
		return u
	}
	token, err := d.tokens.Token()
	if err != nil || token == "" {
		return u
	}
	return u + "?token=" + url.QueryEscape(token)
}

// Subscribe dials the live channel of chatID and starts delivering frames to
// sink. The returned subscription must be closed by its owner.
func (d *Dialer) Subscribe(ctx context.Context, chatID int64, sink Sink) (*Subscription, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.URL(chatID), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("subscribe chat %d: %w", chatID, dmchat_errors.ErrUnauthorized)
		}
		d.log.Error("dial_failed", chatID, err)
		return nil, fmt.Errorf("subscribe chat %d: %w: %w", chatID, dmchat_errors.ErrTransport, err)
	}

	s := &Subscription{
		chatID:   chatID,
		conn:     conn,
		sink:     sink,
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		log:      d.log,
	}
	s.connected.Store(true)
	sink.State(true)
	d.log.Info("subscribed", chatID)

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// Subscription is one open live channel. It is acquired by Subscribe and
// released by Close.
type Subscription struct {
	chatID    int64
	conn      *websocket.Conn
	sink      Sink
	connected atomic.Bool
	closing   atomic.Bool
	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       *Logger
}

func (s *Subscription) ChatID() int64 {
	return s.chatID
}

func (s *Subscription) Connected() bool {
	return s.connected.Load()
}

// Close tears the connection down and waits for its goroutines. Safe to call
// more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	s.wg.Wait()
	return err
}

func (s *Subscription) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)
	defer s.disconnected()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Info("closed_by_server", s.chatID)
				} else {
					s.log.Warn("unexpected_close", s.chatID, zap.Error(err))
				}
			}
			return
		}

		ev, err := events.Decode(data)
		if err != nil {
			s.log.Warn("malformed_frame", s.chatID, zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		s.sink.Event(ev)
	}
}

func (s *Subscription) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.readDone:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.log.Warn("ping_failed", s.chatID, zap.Error(err))
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *Subscription) disconnected() {
	if s.connected.Swap(false) {
		s.sink.State(false)
	}
	if !s.closing.Load() {
		_ = s.conn.Close()
	}
}
