package devserver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"dmchat/internal/events"
	"dmchat/pkg/logger"
)

// Hub tracks live channel clients per chat and fans frames out to them.
type Hub struct {
	mu sync.RWMutex

	// chats maps chat id to the clients watching it
	chats map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	log *logger.Logger
}

func NewHub(l *logger.Logger) *Hub {
	return &Hub{
		chats:      make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		log:        l,
	}
}

// Run starts the hub's event loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish encodes ev and sends it to every client watching chatID.
func (h *Hub) Publish(chatID int64, ev events.Event) {
	payload, err := events.Encode(ev)
	if err != nil {
		h.log.Logger.Error("encode frame", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	h.Broadcast(chatID, payload)
}

func (h *Hub) Broadcast(chatID int64, payload []byte) {
	h.mu.RLock()
	for c := range h.chats[chatID] {
		c.SendMessage(payload)
	}
	h.mu.RUnlock()
}

// SubscriberCount returns the number of clients watching chatID.
func (h *Hub) SubscriberCount(chatID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.chats[client.ChatID]; !ok {
		h.chats[client.ChatID] = make(map[*Client]struct{})
	}
	h.chats[client.ChatID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.chats[client.ChatID]
	if !ok {
		return
	}
	if _, ok := subscribers[client]; !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.chats, client.ChatID)
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for chatID, subscribers := range h.chats {
		for c := range subscribers {
			close(c.send)
		}
		delete(h.chats, chatID)
	}
}
