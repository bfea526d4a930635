package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dmchat/internal/api"
	dmchat_errors "dmchat/pkg/errors"
)

// BeginEdit puts the composer in edit mode for messageID. A pending reply
// is dropped.
func (r *Reconciler) BeginEdit(ctx context.Context, messageID int64) error {
	return r.composeOp(ctx, composeRequest{kind: composeEdit, messageID: messageID})
}

// BeginReply quotes messageID in the next send. A pending edit is dropped.
func (r *Reconciler) BeginReply(ctx context.Context, messageID int64) error {
	return r.composeOp(ctx, composeRequest{kind: composeReply, messageID: messageID})
}

func (r *Reconciler) CancelCompose(ctx context.Context) error {
	return r.composeOp(ctx, composeRequest{kind: composeCancel})
}

func (r *Reconciler) composeOp(ctx context.Context, req composeRequest) error {
	req.result = make(chan error, 1)
	if err := submit(ctx, r, r.compose, req); err != nil {
		return err
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return dmchat_errors.ErrClosed
	}
}

func (r *Reconciler) handleCompose(st *state, req composeRequest) error {
	if st.gen == nil {
		return dmchat_errors.ErrNoActiveChat
	}

	switch req.kind {
	case composeEdit, composeReply:
		i := indexOf(st.messages, req.messageID)
		if i < 0 {
			return fmt.Errorf("message %d: %w", req.messageID, dmchat_errors.ErrNotFound)
		}
		m := st.messages[i]
		if req.kind == composeEdit {
			st.edit, st.reply = &PendingEdit{MessageID: m.ID, Original: m.Content}, nil
		} else {
			st.edit, st.reply = nil, &PendingReply{MessageID: m.ID, Content: m.Content}
		}
	case composeCancel:
		st.edit, st.reply = nil, nil
	case composeEditDone:
		if req.gen != st.gen.id || st.edit == nil || st.edit.MessageID != req.messageID {
			return nil
		}
		st.edit = nil
	case composeReplyDone:
		if req.gen != st.gen.id || st.reply == nil || st.reply.MessageID != req.messageID {
			return nil
		}
		st.reply = nil
	}
	r.publish(st)
	return nil
}

// Send posts a message to the open chat. The message shows up when the
// live channel delivers it. An empty replyContent takes the pending reply,
// which is cleared on success.
func (r *Reconciler) Send(ctx context.Context, content string, image *api.Attachment, replyContent string) error {
	v := r.Snapshot()
	if !v.Active() {
		return dmchat_errors.ErrNoActiveChat
	}
	if content == "" && image == nil {
		return r.fail(v.ChatID, dmchat_errors.OpSendMessage, dmchat_errors.ErrEmptyMessage)
	}

	var reply *PendingReply
	if replyContent == "" && v.Reply != nil {
		reply = v.Reply
		replyContent = reply.Content
	}

	err := r.api.SendMessage(ctx, api.SendMessageInput{
		ChatID:       v.ChatID,
		Content:      content,
		ReplyContent: replyContent,
		Image:        image,
	})
	if err != nil {
		return r.fail(v.ChatID, dmchat_errors.OpSendMessage, err)
	}
	if reply != nil {
		return r.composeOp(ctx, composeRequest{kind: composeReplyDone, gen: v.generation, messageID: reply.MessageID})
	}
	return nil
}

// Edit submits the pending edit of messageID. The list changes when the
// live channel delivers the edit.
func (r *Reconciler) Edit(ctx context.Context, messageID int64, newContent string) error {
	v := r.Snapshot()
	if v.Edit == nil || v.Edit.MessageID != messageID {
		return fmt.Errorf("edit message %d: %w", messageID, dmchat_errors.ErrNotEditing)
	}
	if newContent == "" {
		return r.fail(v.ChatID, dmchat_errors.OpEditMessage, dmchat_errors.ErrEmptyMessage)
	}
	if err := r.api.EditMessage(ctx, messageID, newContent); err != nil {
		return r.fail(v.ChatID, dmchat_errors.OpEditMessage, err)
	}
	return r.composeOp(ctx, composeRequest{kind: composeEditDone, gen: v.generation, messageID: messageID})
}

// Delete asks the server to delete messageID. The message is removed when
// the live channel delivers the deletion.
func (r *Reconciler) Delete(ctx context.Context, messageID int64) error {
	v := r.Snapshot()
	if !v.Active() {
		return dmchat_errors.ErrNoActiveChat
	}
	if err := r.api.DeleteMessage(ctx, messageID); err != nil {
		return r.fail(v.ChatID, dmchat_errors.OpDeleteMessage, err)
	}
	return nil
}

// Submit is the composer's submit: it edits when an edit is pending and
// sends otherwise.
func (r *Reconciler) Submit(ctx context.Context, text string, image *api.Attachment) error {
	v := r.Snapshot()
	if v.Edit != nil {
		return r.Edit(ctx, v.Edit.MessageID, text)
	}
	return r.Send(ctx, text, image, "")
}

func (r *Reconciler) fail(chatID int64, op string, err error) error {
	r.log.Logger.Warn("request failed", zap.String("op", op), zap.Int64("chat_id", chatID), zap.Error(err))
	r.notify(op, err)
	return err
}
