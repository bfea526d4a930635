package events

import (
	"encoding/json"
	"fmt"
	"time"

	"dmchat/internal/domain"
	"dmchat/internal/transport/httpdto"
	dmchat_errors "dmchat/pkg/errors"
)

// Frame is the JSON shape pushed on /ws/chat/{chatId}.
type Frame struct {
	Action     string  `json:"action,omitempty"`
	MessageID  int64   `json:"message_id,omitempty"`
	NewContent *string `json:"new_content,omitempty"`

	ID                int64              `json:"id,omitempty"`
	ChatID            int64              `json:"chat_id,omitempty"`
	Content           string             `json:"content,omitempty"`
	ReplyContent      string             `json:"reply_content,omitempty"`
	ImageURL          string             `json:"image_url,omitempty"`
	SentTime          *httpdto.Timestamp `json:"sent_time,omitempty"`
	SenderID          int64              `json:"sender_id,omitempty"`
	SenderUsername    string             `json:"sender_username,omitempty"`
	SenderDisplayName string             `json:"sender_displayName,omitempty"`
	SenderDisplayAlt  string             `json:"sender_display_name,omitempty"`
}

// Decode turns a raw frame into a tagged Event.
func Decode(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", dmchat_errors.ErrMalformedEvent, err)
	}
	return f.Event()
}

func (f Frame) Event() (Event, error) {
	switch f.Action {
	case "":
		if f.ID == 0 {
			return Event{}, fmt.Errorf("%w: message frame without id", dmchat_errors.ErrMalformedEvent)
		}
		var sentTime time.Time
		if f.SentTime != nil {
			sentTime = f.SentTime.Time
		}
		displayName := f.SenderDisplayName
		if displayName == "" {
			displayName = f.SenderDisplayAlt
		}
		return Append(domain.Message{
			ID:           f.ID,
			ChatID:       f.ChatID,
			Content:      f.Content,
			SentTime:     sentTime,
			ImageURL:     f.ImageURL,
			ReplyContent: f.ReplyContent,
			Sender: domain.Sender{
				ID:          f.SenderID,
				Username:    f.SenderUsername,
				DisplayName: displayName,
			},
		}), nil
	case ActionEditMessage:
		if f.MessageID == 0 || f.NewContent == nil {
			return Event{}, fmt.Errorf("%w: edit frame needs message_id and new_content", dmchat_errors.ErrMalformedEvent)
		}
		return Edit(f.MessageID, *f.NewContent), nil
	case ActionDeleteMessage:
		if f.MessageID == 0 {
			return Event{}, fmt.Errorf("%w: delete frame needs message_id", dmchat_errors.ErrMalformedEvent)
		}
		return Delete(f.MessageID), nil
	default:
		return Event{}, fmt.Errorf("%w: unknown action %q", dmchat_errors.ErrMalformedEvent, f.Action)
	}
}

// NewFrame is the inverse of Frame.Event.
func NewFrame(ev Event) Frame {
	switch ev.Kind {
	case KindEdit:
		content := ev.NewContent
		return Frame{Action: ActionEditMessage, MessageID: ev.MessageID, NewContent: &content}
	case KindDelete:
		return Frame{Action: ActionDeleteMessage, MessageID: ev.MessageID}
	default:
		m := ev.Message
		return Frame{
			ID:                m.ID,
			ChatID:            m.ChatID,
			Content:           m.Content,
			ReplyContent:      m.ReplyContent,
			ImageURL:          m.ImageURL,
			SentTime:          &httpdto.Timestamp{Time: m.SentTime},
			SenderID:          m.Sender.ID,
			SenderUsername:    m.Sender.Username,
			SenderDisplayName: m.Sender.DisplayName,
		}
	}
}

func Encode(ev Event) ([]byte, error) {
	return json.Marshal(NewFrame(ev))
}
