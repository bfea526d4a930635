package events

import "dmchat/internal/domain"

// Wire actions of the live channel. A frame without an action is a newly
// created message.
const (
	ActionEditMessage   = "edit_message"
	ActionDeleteMessage = "delete_message"
)

type Kind int

const (
	KindAppend Kind = iota + 1
	KindEdit
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindAppend:
		return "append"
	case KindEdit:
		return ActionEditMessage
	case KindDelete:
		return ActionDeleteMessage
	default:
		return "unknown"
	}
}

// Event is a decoded live channel frame. Message is set for KindAppend;
// MessageID for KindEdit and KindDelete; NewContent for KindEdit.
type Event struct {
	Kind       Kind
	Message    domain.Message
	MessageID  int64
	NewContent string
}

func Append(m domain.Message) Event {
	return Event{Kind: KindAppend, Message: m, MessageID: m.ID}
}

func Edit(messageID int64, newContent string) Event {
	return Event{Kind: KindEdit, MessageID: messageID, NewContent: newContent}
}

func Delete(messageID int64) Event {
	return Event{Kind: KindDelete, MessageID: messageID}
}
