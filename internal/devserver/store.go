package devserver

import (
	"sort"
	"sync"
	"time"

	"dmchat/internal/domain"
	dmchat_errors "dmchat/pkg/errors"
)

type userRecord struct {
	user         domain.User
	email        string
	passwordHash string
}

// Store is the in-memory state of the fake backend. Nothing survives a
// restart.
type Store struct {
	mu sync.RWMutex

	nextUserID    int64
	nextChatID    int64
	nextMessageID int64

	users        map[string]*userRecord
	chats        map[int64]domain.Chat
	messages     map[int64][]domain.Message
	messageChats map[int64]int64
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]*userRecord),
		chats:        make(map[int64]domain.Chat),
		messages:     make(map[int64][]domain.Message),
		messageChats: make(map[int64]int64),
	}
}

func (s *Store) CreateUser(username, displayName, email, passwordHash string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return domain.User{}, dmchat_errors.ErrConflict
	}
	s.nextUserID++
	u := domain.User{ID: s.nextUserID, Username: username, DisplayName: displayName}
	s.users[username] = &userRecord{user: u, email: email, passwordHash: passwordHash}
	return u, nil
}

func (s *Store) user(username string) (*userRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[username]
	if !ok {
		return nil, dmchat_errors.ErrNotFound
	}
	return rec, nil
}

func (s *Store) User(username string) (domain.User, error) {
	rec, err := s.user(username)
	if err != nil {
		return domain.User{}, err
	}
	return rec.user, nil
}

// ChatsFor lists the chats username takes part in, oldest first.
func (s *Store) ChatsFor(username string) []domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chat, 0)
	for _, ch := range s.chats {
		if isParticipant(ch, username) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindOrCreateChat returns the direct chat between a and b, creating it when
// it does not exist yet. created reports which one happened.
func (s *Store) FindOrCreateChat(a, b string) (chat domain.Chat, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[a]
	if !ok {
		return domain.Chat{}, false, dmchat_errors.ErrNotFound
	}
	ub, ok := s.users[b]
	if !ok {
		return domain.Chat{}, false, dmchat_errors.ErrNotFound
	}
	if a == b {
		return domain.Chat{}, false, dmchat_errors.ErrInvalidInput
	}

	for _, ch := range s.chats {
		if isParticipant(ch, a) && isParticipant(ch, b) {
			return ch, false, nil
		}
	}

	s.nextChatID++
	chat = domain.Chat{
		ID: s.nextChatID,
		Participants: []domain.Participant{
			participantOf(ua.user),
			participantOf(ub.user),
		},
	}
	s.chats[chat.ID] = chat
	return chat, true, nil
}

// Chat returns chatID if username takes part in it.
func (s *Store) Chat(chatID int64, username string) (domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.chats[chatID]
	if !ok {
		return domain.Chat{}, dmchat_errors.ErrNotFound
	}
	if !isParticipant(ch, username) {
		return domain.Chat{}, dmchat_errors.ErrForbidden
	}
	return ch, nil
}

func (s *Store) AddMessage(chatID int64, sender domain.User, content, replyContent, imageURL string, sentTime time.Time) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	m := domain.Message{
		ID:           s.nextMessageID,
		ChatID:       chatID,
		Content:      content,
		SentTime:     sentTime.UTC(),
		ImageURL:     imageURL,
		ReplyContent: replyContent,
		Sender: domain.Sender{
			ID:          sender.ID,
			Username:    sender.Username,
			DisplayName: sender.DisplayName,
		},
	}
	s.messages[chatID] = append(s.messages[chatID], m)
	s.messageChats[m.ID] = chatID
	return m
}

// Messages returns the history of chatID ordered by sent time.
func (s *Store) Messages(chatID int64) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentTime.Before(out[j].SentTime) })
	return out
}

// EditMessage replaces the content of a message sent by username.
func (s *Store) EditMessage(messageID int64, username, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, idx, err := s.locate(messageID, username)
	if err != nil {
		return domain.Message{}, err
	}
	s.messages[chatID][idx].Content = content
	return s.messages[chatID][idx], nil
}

// DeleteMessage removes a message sent by username.
func (s *Store) DeleteMessage(messageID int64, username string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, idx, err := s.locate(messageID, username)
	if err != nil {
		return domain.Message{}, err
	}
	list := s.messages[chatID]
	m := list[idx]
	s.messages[chatID] = append(list[:idx:idx], list[idx+1:]...)
	delete(s.messageChats, messageID)
	return m, nil
}

func (s *Store) locate(messageID int64, username string) (int64, int, error) {
	chatID, ok := s.messageChats[messageID]
	if !ok {
		return 0, 0, dmchat_errors.ErrNotFound
	}
	for i, m := range s.messages[chatID] {
		if m.ID != messageID {
			continue
		}
		if m.Sender.Username != username {
			return 0, 0, dmchat_errors.ErrForbidden
		}
		return chatID, i, nil
	}
	return 0, 0, dmchat_errors.ErrNotFound
}

func isParticipant(ch domain.Chat, username string) bool {
	for _, p := range ch.Participants {
		if p.Username == username {
			return true
		}
	}
	return false
}

func participantOf(u domain.User) domain.Participant {
	return domain.Participant{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}
