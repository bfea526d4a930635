package httpdto

import "dmchat/internal/domain"

type ParticipantDTO struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

type ChatDTO struct {
	ChatID       int64            `json:"chat_id"`
	Participants []ParticipantDTO `json:"participants"`
}

func (c ChatDTO) ToDomain() domain.Chat {
	chat := domain.Chat{ID: c.ChatID, Participants: make([]domain.Participant, 0, len(c.Participants))}
	for _, p := range c.Participants {
		chat.Participants = append(chat.Participants, domain.Participant{
			ID:          p.ID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
		})
	}
	return chat
}

func NewChatDTO(c domain.Chat) ChatDTO {
	dto := ChatDTO{ChatID: c.ID, Participants: make([]ParticipantDTO, 0, len(c.Participants))}
	for _, p := range c.Participants {
		dto.Participants = append(dto.Participants, ParticipantDTO{
			ID:          p.ID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
		})
	}
	return dto
}

// ChatsResponse is returned by GET /chats
type ChatsResponse struct {
	Chats []ChatDTO `json:"chats"`
}

// CreateChatRequest is the body of POST /chats
type CreateChatRequest struct {
	Username string `json:"username" binding:"required"`
}

// CreateChatResponse is returned by POST /chats. Participants is omitted
// when the chat already existed.
type CreateChatResponse struct {
	ChatID       int64            `json:"chat_id"`
	Message      string           `json:"message,omitempty"`
	Participants []ParticipantDTO `json:"participants,omitempty"`
}
