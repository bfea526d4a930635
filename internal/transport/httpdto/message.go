package httpdto

import (
	"encoding/json"

	"dmchat/internal/domain"
)

type SenderDTO struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// MessageDTO is a message as listed by GET /messages.
type MessageDTO struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chat_id"`
	Content      string    `json:"content"`
	ReplyContent string    `json:"reply_content,omitempty"`
	SentTime     Timestamp `json:"sent_time"`
	ImageURL     string    `json:"image_url,omitempty"`
	Sender       SenderDTO `json:"sender"`
}

func (m MessageDTO) ToDomain() domain.Message {
	return domain.Message{
		ID:           m.ID,
		ChatID:       m.ChatID,
		Content:      m.Content,
		SentTime:     m.SentTime.Time,
		ImageURL:     m.ImageURL,
		ReplyContent: m.ReplyContent,
		Sender: domain.Sender{
			ID:          m.Sender.ID,
			Username:    m.Sender.Username,
			DisplayName: m.Sender.DisplayName,
		},
	}
}

func NewMessageDTO(m domain.Message) MessageDTO {
	return MessageDTO{
		ID:           m.ID,
		ChatID:       m.ChatID,
		Content:      m.Content,
		ReplyContent: m.ReplyContent,
		SentTime:     Timestamp{Time: m.SentTime},
		ImageURL:     m.ImageURL,
		Sender: SenderDTO{
			ID:          m.Sender.ID,
			Username:    m.Sender.Username,
			DisplayName: m.Sender.DisplayName,
		},
	}
}

// MessagesResponse is returned by GET /messages?chat_id=
type MessagesResponse struct {
	Messages []MessageDTO `json:"messages"`
}

func (r MessagesResponse) ToDomain() []domain.Message {
	out := make([]domain.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.ToDomain())
	}
	return out
}

// SendMessageResponse is returned by POST /messages
type SendMessageResponse struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"message_details,omitempty"`
}

// EditMessageRequest is the body of PATCH /messages/{id}
type EditMessageRequest struct {
	NewContent string `json:"new_content"`
}

// Multipart field names of POST /messages
const (
	FormChatID       = "chat_id"
	FormContent      = "content"
	FormImage        = "image"
	FormReplyContent = "reply_content"
)
