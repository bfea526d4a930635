package reconciler

import "dmchat/internal/domain"

// PendingEdit is an edit in progress. Original is the content at the time
// the edit began.
type PendingEdit struct {
	MessageID int64
	Original  string
}

// PendingReply is a reply in progress. Content is the quoted snapshot sent
// as reply_content.
type PendingReply struct {
	MessageID int64
	Content   string
}

// Affordances are the actions the UI offers on one message.
type Affordances struct {
	Edit   bool
	Delete bool
	Reply  bool
}

// AffordancesFor applies the chat window rule: messages not authored by the
// counterpart offer edit and delete, counterpart messages offer reply.
func AffordancesFor(msg domain.Message, counterpartID int64) Affordances {
	if msg.Sender.ID == counterpartID {
		return Affordances{Reply: true}
	}
	return Affordances{Edit: true, Delete: true}
}

type composeKind int

const (
	composeEdit composeKind = iota + 1
	composeReply
	composeCancel
	composeEditDone
	composeReplyDone
)

// composeRequest changes composer state on the loop. For the *Done kinds
// the change only applies if messageID is still the pending one.
type composeRequest struct {
	kind      composeKind
	gen       uint64
	messageID int64
	result    chan error
}
