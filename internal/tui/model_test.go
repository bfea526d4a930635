package tui

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/api"
	"dmchat/internal/domain"
	"dmchat/internal/notify"
	"dmchat/internal/reconciler"
	"dmchat/internal/services"
	"dmchat/internal/session"
	dmchat_errors "dmchat/pkg/errors"
)

type fakeAuth struct {
	mu         sync.Mutex
	restoreErr error
	loginErr   error
	logins     [][2]string
	registered []services.RegisterInput
	logouts    int
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, [2]string{username, password})
	if f.loginErr != nil {
		return session.Session{}, f.loginErr
	}
	return session.Session{Token: "t", User: domain.User{ID: 1, Username: username, DisplayName: "Alice"}}, nil
}

func (f *fakeAuth) Register(ctx context.Context, in services.RegisterInput) (session.Session, error) {
	f.mu.Lock()
	f.registered = append(f.registered, in)
	f.mu.Unlock()
	return session.Session{Token: "t", User: domain.User{ID: 1, Username: in.Username, DisplayName: in.DisplayName}}, nil
}

func (f *fakeAuth) Restore(ctx context.Context) (session.Session, error) {
	if f.restoreErr != nil {
		return session.Session{}, f.restoreErr
	}
	return session.Session{Token: "t", User: domain.User{ID: 1, Username: "alice"}}, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

type fakeChats struct {
	mu      sync.Mutex
	entries []services.ChatEntry
	created []string
}

func (f *fakeChats) List(ctx context.Context) ([]services.ChatEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.ChatEntry(nil), f.entries...), nil
}

func (f *fakeChats) Create(ctx context.Context, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, username)
	id := int64(100 + len(f.created))
	f.entries = append(f.entries, entry(id, 9, username))
	return id, nil
}

type fakeThread struct {
	mu        sync.Mutex
	calls     []string
	opened    []int64
	submitted []string
	images    []*api.Attachment
	submitErr error
	changes   chan struct{}
}

func newFakeThread() *fakeThread {
	return &fakeThread{changes: make(chan struct{})}
}

func (f *fakeThread) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeThread) Open(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	f.opened = append(f.opened, chatID)
	f.mu.Unlock()
	f.record("open")
	return nil
}

func (f *fakeThread) Close(ctx context.Context) error         { f.record("close"); return nil }
func (f *fakeThread) Snapshot() reconciler.View               { return reconciler.View{} }
func (f *fakeThread) Changes() <-chan struct{}                { return f.changes }
func (f *fakeThread) CancelCompose(ctx context.Context) error { f.record("cancel"); return nil }

func (f *fakeThread) BeginEdit(ctx context.Context, messageID int64) error {
	f.record("edit")
	return nil
}

func (f *fakeThread) BeginReply(ctx context.Context, messageID int64) error {
	f.record("reply")
	return nil
}

func (f *fakeThread) Delete(ctx context.Context, messageID int64) error {
	f.record("delete")
	return nil
}

func (f *fakeThread) Submit(ctx context.Context, text string, image *api.Attachment) error {
	f.mu.Lock()
	f.submitted = append(f.submitted, text)
	f.images = append(f.images, image)
	err := f.submitErr
	f.mu.Unlock()
	return err
}

func (f *fakeThread) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func entry(chatID, counterpartID int64, username string) services.ChatEntry {
	bob := domain.Participant{ID: counterpartID, Username: username, DisplayName: "Bob"}
	return services.ChatEntry{
		Chat:        domain.Chat{ID: chatID, Participants: []domain.Participant{{ID: 1, Username: "alice"}, bob}},
		Counterpart: bob,
	}
}

type harness struct {
	model   Model
	auth    *fakeAuth
	chats   *fakeChats
	thread  *fakeThread
	notices *notify.Notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		auth:    &fakeAuth{restoreErr: dmchat_errors.ErrNoSession},
		chats:   &fakeChats{entries: []services.ChatEntry{entry(7, 2, "bob")}},
		thread:  newFakeThread(),
		notices: notify.New(time.Minute, nil),
	}
	h.model = New(context.Background(), Deps{
		Auth:       h.auth,
		Chats:      h.chats,
		Thread:     h.thread,
		Notices:    h.notices,
		ResolveURL: func(p string) string { return "http://api.test" + p },
	})
	return h
}

// send feeds msg to the model, then feeds back every message its commands
// produce within a short window.
func (h *harness) send(msg tea.Msg) {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	for _, out := range collect(cmd) {
		h.send(out)
	}
}

func (h *harness) key(k string) {
	switch k {
	case "enter":
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		h.send(tea.KeyMsg{Type: tea.KeyEsc})
	case "up":
		h.send(tea.KeyMsg{Type: tea.KeyUp})
	case "down":
		h.send(tea.KeyMsg{Type: tea.KeyDown})
	case "ctrl+e":
		h.send(tea.KeyMsg{Type: tea.KeyCtrlE})
	case "ctrl+r":
		h.send(tea.KeyMsg{Type: tea.KeyCtrlR})
	case "ctrl+d":
		h.send(tea.KeyMsg{Type: tea.KeyCtrlD})
	case "ctrl+n":
		h.send(tea.KeyMsg{Type: tea.KeyCtrlN})
	default:
		h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	}
}

// collect runs cmd and its batched children and returns the application
// messages they yield. Cursor blink ticks outlast the window and are dropped.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	out := make(chan tea.Msg, 64)
	var wg sync.WaitGroup
	var launch func(c tea.Cmd)
	launch = func(c tea.Cmd) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, inner := range batch {
					if inner != nil {
						launch(inner)
					}
				}
				return
			}
			out <- msg
		}()
	}
	launch(cmd)
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	var msgs []tea.Msg
	keep := func(msg tea.Msg) {
		switch msg.(type) {
		case sessionMsg, chatsMsg, chatCreatedMsg, actionMsg, loggedOutMsg:
			msgs = append(msgs, msg)
		}
	}
	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case msg := <-out:
			keep(msg)
		case <-finished:
			for {
				select {
				case msg := <-out:
					keep(msg)
				default:
					return msgs
				}
			}
		case <-deadline:
			return msgs
		}
	}
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	h.send(sessionMsg{restored: true, err: dmchat_errors.ErrNoSession})
	h.key("alice")
	h.key("enter")
	h.key("secret12")
	h.key("enter")
	require.Equal(t, screenChats, h.model.screen)
}

func (h *harness) openChat(t *testing.T, msgs ...domain.Message) {
	t.Helper()
	h.signIn(t)
	h.key("enter")
	require.Equal(t, screenChat, h.model.screen)
	h.send(viewMsg{view: reconciler.View{ChatID: 7, Messages: msgs, Connected: true}})
}

func message(id, senderID int64, name, content string) domain.Message {
	return domain.Message{
		ID:       id,
		ChatID:   7,
		Content:  content,
		SentTime: time.Date(2024, 3, 1, 9, 5, 0, 0, time.Local),
		Sender:   domain.Sender{ID: senderID, Username: name, DisplayName: name},
	}
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.model.View(), "Restoring session...")

	h.signIn(t)

	assert.Equal(t, [][2]string{{"alice", "secret12"}}, h.auth.logins)
	assert.Equal(t, "Alice", h.model.user.Name())
	view := h.model.View()
	assert.Contains(t, view, "Hello, Alice!")
	assert.Contains(t, view, "Bob  @bob")
}

func TestLoginFailureClearsPassword(t *testing.T) {
	h := newHarness(t)
	h.auth.loginErr = dmchat_errors.ErrUnauthorized
	h.send(sessionMsg{restored: true, err: dmchat_errors.ErrNoSession})

	h.key("alice")
	h.key("enter")
	h.key("wrongpass1")
	h.key("enter")

	assert.Equal(t, screenLogin, h.model.screen)
	assert.Equal(t, []string{"alice", ""}, h.model.login.values())
	assert.False(t, h.model.login.pending)
}

func TestRestoredSessionSkipsLogin(t *testing.T) {
	h := newHarness(t)
	h.auth.restoreErr = nil

	h.send(h.model.restore()())

	assert.Equal(t, screenChats, h.model.screen)
	assert.Len(t, h.model.chats.entries, 1)
}

func TestRegisterFlow(t *testing.T) {
	h := newHarness(t)
	h.send(sessionMsg{restored: true, err: dmchat_errors.ErrNoSession})
	h.key("ctrl+n")
	require.Equal(t, screenRegister, h.model.screen)

	for _, v := range []string{"carol", "Carol", "carol@example.com", "password1"} {
		h.key(v)
		h.key("enter")
	}

	require.Len(t, h.auth.registered, 1)
	assert.Equal(t, services.RegisterInput{
		Username: "carol", DisplayName: "Carol", Email: "carol@example.com", Password: "password1",
	}, h.auth.registered[0])
	assert.Equal(t, screenChats, h.model.screen)
}

func TestAddFriendSelectsNewChat(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	h.key("dave")
	h.key("enter")

	assert.Equal(t, []string{"dave"}, h.chats.created)
	assert.Len(t, h.model.chats.entries, 2)
	assert.Equal(t, 1, h.model.chats.selected)
	assert.Empty(t, h.model.chats.input.Value())
}

func TestOpenChatRendersThread(t *testing.T) {
	h := newHarness(t)
	reply := message(2, 1, "alice", "sure")
	reply.ReplyContent = "lunch?"
	img := message(3, 2, "bob", "")
	img.ImageURL = "/uploads/cat.png"

	h.openChat(t, message(1, 2, "bob", "lunch?"), reply, img)

	assert.Equal(t, []int64{7}, h.thread.opened)
	view := h.model.View()
	assert.Contains(t, view, "@bob  #7")
	assert.Contains(t, view, "● live")
	assert.Contains(t, view, "09:05")
	assert.Contains(t, view, "│ lunch?")
	assert.Contains(t, view, "[image] http://api.test/uploads/cat.png")
}

func TestRenderThreadStates(t *testing.T) {
	th := newTheme()
	id := func(s string) string { return s }

	text, offsets := renderThread(reconciler.View{Loading: true}, 2, -1, th, id)
	assert.Contains(t, text, "Loading messages...")
	assert.Nil(t, offsets)

	text, _ = renderThread(reconciler.View{Err: dmchat_errors.ErrTransport}, 2, -1, th, id)
	assert.Contains(t, text, "Could not load messages")

	text, _ = renderThread(reconciler.View{}, 2, -1, th, id)
	assert.Contains(t, text, "No messages yet")

	withReply := message(2, 1, "alice", "b")
	withReply.ReplyContent = "a"
	_, offsets = renderThread(reconciler.View{Messages: []domain.Message{message(1, 2, "bob", "a"), withReply}}, 2, 1, th, id)
	assert.Equal(t, []int{0, 2}, offsets)
}

func TestAffordancesGateComposerKeys(t *testing.T) {
	h := newHarness(t)
	h.openChat(t, message(1, 2, "bob", "hi"), message(2, 1, "alice", "hello"))

	// Own message: edit and delete, no reply.
	h.key("up")
	require.Equal(t, 1, h.model.chat.selected)
	h.key("ctrl+r")
	h.key("ctrl+e")
	h.key("ctrl+d")
	assert.Equal(t, []string{"open", "edit", "delete"}, h.thread.callList())
	assert.Equal(t, "hello", h.model.chat.input.Value())

	// Counterpart message: reply only.
	h.key("up")
	require.Equal(t, 0, h.model.chat.selected)
	h.key("ctrl+e")
	h.key("ctrl+d")
	h.key("ctrl+r")
	assert.Equal(t, []string{"open", "edit", "delete", "reply"}, h.thread.callList())

	h.key("down")
	h.key("down")
	assert.Equal(t, -1, h.model.chat.selected)
}

func TestComposerBanners(t *testing.T) {
	h := newHarness(t)
	h.openChat(t, message(1, 2, "bob", "hi"))
	h.send(viewMsg{view: reconciler.View{
		ChatID:    7,
		Messages:  []domain.Message{message(1, 2, "bob", "hi")},
		Connected: false,
		Reply:     &reconciler.PendingReply{MessageID: 1, Content: "hi"},
	}})

	view := h.model.View()
	assert.Contains(t, view, "Replying to: hi")
	assert.Contains(t, view, "○ offline")

	h.key("esc")
	assert.Equal(t, screenChat, h.model.screen)
	assert.Contains(t, h.thread.callList(), "cancel")
}

func TestSubmitWithAttachment(t *testing.T) {
	h := newHarness(t)
	h.openChat(t)

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o600))

	h.key(imageCommand + path)
	h.key("enter")
	require.NotNil(t, h.model.chat.attachment)
	assert.Contains(t, h.model.View(), "Attached: cat.png (2.0 kB)")

	h.key("look")
	h.key("enter")

	require.Equal(t, []string{"look"}, h.thread.submitted)
	require.NotNil(t, h.thread.images[0])
	assert.Equal(t, "cat.png", h.thread.images[0].Name)
	assert.Nil(t, h.model.chat.attachment)
	assert.Empty(t, h.model.chat.input.Value())
}

func TestMissingAttachmentNotifies(t *testing.T) {
	h := newHarness(t)
	h.openChat(t)

	h.key(imageCommand + "/does/not/exist.png")
	h.key("enter")

	assert.Nil(t, h.model.chat.attachment)
	h.send(noticesMsg{})
	assert.Contains(t, h.model.View(), "Could not read /does/not/exist.png")
}

func TestFailedSubmitKeepsText(t *testing.T) {
	h := newHarness(t)
	h.openChat(t)
	h.thread.submitErr = dmchat_errors.ErrTransport

	h.key("hello")
	h.key("enter")

	assert.Equal(t, "hello", h.model.chat.input.Value())
	assert.False(t, h.model.chat.pending)
}

func TestEscLeavesChat(t *testing.T) {
	h := newHarness(t)
	h.openChat(t)

	h.key("esc")

	assert.Equal(t, screenChats, h.model.screen)
	assert.Contains(t, h.thread.callList(), "close")
}

func TestUnauthorizedActionSignsOut(t *testing.T) {
	h := newHarness(t)
	h.openChat(t)
	h.thread.submitErr = &dmchat_errors.APIError{Op: "POST /messages", Status: 401}

	h.key("hi")
	h.key("enter")

	assert.Equal(t, screenLogin, h.model.screen)
	assert.Equal(t, 1, h.auth.logouts)
	assert.Contains(t, h.thread.callList(), "close")
}

func TestNotificationsRender(t *testing.T) {
	h := newHarness(t)
	h.notices.Success("Friend added! Enjoy chatting :)")
	h.notices.Error(dmchat_errors.OpSendMessage, dmchat_errors.ErrTransport)

	h.send(noticesMsg{})

	view := h.model.View()
	assert.Contains(t, view, "• Friend added! Enjoy chatting :)")
	assert.Contains(t, view, "• Message was not sent")
}
