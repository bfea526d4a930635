package devserver

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client is one live channel connection watching a single chat.
type Client struct {
	ID       string
	ChatID   int64
	Username string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, chatID int64, username string, l *logger.Logger) *Client {
	return &Client{
		ID:       uuid.New().String(),
		ChatID:   chatID,
		Username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		log:      l,
	}
}

// SendMessage queues payload without blocking. A client that cannot keep up
// loses the frame.
func (c *Client) SendMessage(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Logger.Warn("client send buffer full",
			zap.String("client_id", c.ID),
			zap.Int64("chat_id", c.ChatID))
	}
}

// readPump drains the connection so control frames are processed. The live
// channel carries nothing from client to server.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Logger.Warn("websocket unexpected close",
					zap.String("client_id", c.ID),
					zap.Int64("chat_id", c.ChatID),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump writes one frame per queued payload.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
