package domain

import (
	"time"
)

// Sender identifies the author of a message.
type Sender struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name returns the display name, falling back to the username.
func (s Sender) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}

// Message is a single entry of a chat thread. ID and SentTime are assigned by
// the server and never change; only Content can be edited.
type Message struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chat_id"`
	Content      string    `json:"content"`
	SentTime     time.Time `json:"sent_time"`
	ImageURL     string    `json:"image_url,omitempty"`
	ReplyContent string    `json:"reply_content,omitempty"`
	Sender       Sender    `json:"sender"`
}

func (m Message) HasImage() bool {
	return m.ImageURL != ""
}

func (m Message) IsReply() bool {
	return m.ReplyContent != ""
}
