package services

import (
	"context"

	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/session"
	"dmchat/internal/transport/httpdto"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

type ChatAPI interface {
	ListChats(ctx context.Context) ([]domain.Chat, error)
	CreateChat(ctx context.Context, username string) (httpdto.CreateChatResponse, error)
}

// ChatEntry is a chat as shown in the chat list.
type ChatEntry struct {
	Chat        domain.Chat
	Counterpart domain.Participant
}

type ChatService struct {
	api      ChatAPI
	sessions *session.Manager
	notifier Notifier
	log      *logger.Logger
}

func NewChatService(api ChatAPI, sessions *session.Manager, notifier Notifier, l *logger.Logger) *ChatService {
	if l == nil {
		l = logger.Nop()
	}
	return &ChatService{api: api, sessions: sessions, notifier: notifier, log: l.Named("chats")}
}

// List returns the chats of the signed in user with their counterparts.
func (s *ChatService) List(ctx context.Context) ([]ChatEntry, error) {
	chats, err := s.api.ListChats(ctx)
	if err != nil {
		return nil, s.fail(dmchat_errors.OpListChats, err)
	}

	me := s.username()
	entries := make([]ChatEntry, 0, len(chats))
	for _, ch := range chats {
		counterpart, ok := ch.Counterpart(me)
		if !ok {
			s.log.Logger.Debug("chat without counterpart", zap.Int64("chat_id", ch.ID))
		}
		entries = append(entries, ChatEntry{Chat: ch, Counterpart: counterpart})
	}
	return entries, nil
}

// Create finds or starts the direct chat with username and returns its id.
func (s *ChatService) Create(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, s.fail(dmchat_errors.OpCreateChat, dmchat_errors.ErrInvalidInput)
	}
	resp, err := s.api.CreateChat(ctx, username)
	if err != nil {
		return 0, s.fail(dmchat_errors.OpCreateChat, err)
	}
	if s.notifier != nil {
		s.notifier.Success("Friend added! Enjoy chatting :)")
	}
	s.log.Logger.Info("chat ready", zap.Int64("chat_id", resp.ChatID), zap.String("with", username))
	return resp.ChatID, nil
}

func (s *ChatService) username() string {
	if s.sessions == nil {
		return ""
	}
	sess, _ := s.sessions.Current()
	return sess.User.Username
}

func (s *ChatService) fail(op string, err error) error {
	if s.notifier != nil {
		s.notifier.Error(op, err)
	}
	return err
}
