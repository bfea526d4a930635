package reconciler

import (
	"dmchat/internal/domain"
	"dmchat/internal/events"
)

// ApplyEvent returns list with ev applied. The input slice is never
// modified, so published views stay immutable.
//
// Append adds the message at the end unless its id is already present.
// Edit replaces the content of the message with that id. Delete removes it.
// Edit and Delete of an absent id leave the list unchanged.
func ApplyEvent(list []domain.Message, ev events.Event) []domain.Message {
	switch ev.Kind {
	case events.KindAppend:
		if indexOf(list, ev.Message.ID) >= 0 {
			return list
		}
		out := make([]domain.Message, len(list), len(list)+1)
		copy(out, list)
		return append(out, ev.Message)

	case events.KindEdit:
		i := indexOf(list, ev.MessageID)
		if i < 0 {
			return list
		}
		out := make([]domain.Message, len(list))
		copy(out, list)
		out[i].Content = ev.NewContent
		return out

	case events.KindDelete:
		i := indexOf(list, ev.MessageID)
		if i < 0 {
			return list
		}
		out := make([]domain.Message, 0, len(list)-1)
		out = append(out, list[:i]...)
		return append(out, list[i+1:]...)
	}
	return list
}

// ApplyAll applies evs in order.
func ApplyAll(list []domain.Message, evs ...events.Event) []domain.Message {
	for _, ev := range evs {
		list = ApplyEvent(list, ev)
	}
	return list
}

func indexOf(list []domain.Message, id int64) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
