// Package tui is the terminal front end: login and registration forms, the
// chat list and a live chat thread driven by the reconciler.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"dmchat/internal/api"
	"dmchat/internal/domain"
	"dmchat/internal/notify"
	"dmchat/internal/reconciler"
	"dmchat/internal/services"
	"dmchat/internal/session"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

type Auth interface {
	Login(ctx context.Context, username, password string) (session.Session, error)
	Register(ctx context.Context, in services.RegisterInput) (session.Session, error)
	Restore(ctx context.Context) (session.Session, error)
	Logout(ctx context.Context) error
}

type Chats interface {
	List(ctx context.Context) ([]services.ChatEntry, error)
	Create(ctx context.Context, username string) (int64, error)
}

// Thread is the open chat as maintained by the reconciler.
type Thread interface {
	Open(ctx context.Context, chatID int64) error
	Close(ctx context.Context) error
	Snapshot() reconciler.View
	Changes() <-chan struct{}
	BeginEdit(ctx context.Context, messageID int64) error
	BeginReply(ctx context.Context, messageID int64) error
	CancelCompose(ctx context.Context) error
	Submit(ctx context.Context, text string, image *api.Attachment) error
	Delete(ctx context.Context, messageID int64) error
}

type Notices interface {
	Add(level notify.Level, text string) string
	Active() []notify.Notification
	Changes() <-chan struct{}
}

type Deps struct {
	Auth    Auth
	Chats   Chats
	Thread  Thread
	Notices Notices
	// ResolveURL turns server relative image paths into absolute links.
	ResolveURL func(string) string
	Logger     *logger.Logger
}

type screen int

const (
	screenLogin screen = iota
	screenRegister
	screenChats
	screenChat
)

// Rows taken by the top bar and the notification area.
const chromeHeight = 6

type Model struct {
	ctx   context.Context
	deps  Deps
	log   *logger.Logger
	theme theme

	screen    screen
	restoring bool
	user      domain.User
	width     int
	height    int

	login    form
	register form
	chats    chatList
	chat     chatView

	notices []notify.Notification
}

func New(ctx context.Context, deps Deps) Model {
	l := deps.Logger
	if l == nil {
		l = logger.Nop()
	}
	if deps.ResolveURL == nil {
		deps.ResolveURL = func(s string) string { return s }
	}
	return Model{
		ctx:       ctx,
		deps:      deps,
		log:       l.Named("tui"),
		theme:     newTheme(),
		screen:    screenLogin,
		restoring: true,
		width:     80,
		height:    24,
		login:     newLoginForm(),
		register:  newRegisterForm(),
		chats:     newChatList(),
		chat:      newChatView(services.ChatEntry{}, 80, 24-chromeHeight),
	}
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps) error {
	p := tea.NewProgram(New(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

type sessionMsg struct {
	sess     session.Session
	err      error
	restored bool
}

type chatsMsg struct {
	entries []services.ChatEntry
	err     error
}

type chatCreatedMsg struct {
	chatID int64
	err    error
}

type viewMsg struct {
	view reconciler.View
}

type noticesMsg struct{}

type tickMsg time.Time

type loggedOutMsg struct{}

const (
	actionOpen   = "open"
	actionClose  = "close"
	actionSubmit = "submit"
	actionDelete = "delete"
	actionEdit   = "begin_edit"
	actionReply  = "begin_reply"
	actionCancel = "cancel"
)

type actionMsg struct {
	action    string
	messageID int64
	err       error
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.restore(), tick()}
	if m.deps.Thread != nil {
		cmds = append(cmds, waitForView(m.ctx, m.deps.Thread))
	}
	if m.deps.Notices != nil {
		cmds = append(cmds, waitForNotices(m.ctx, m.deps.Notices))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForView(ctx context.Context, t Thread) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-t.Changes():
			return viewMsg{view: t.Snapshot()}
		case <-ctx.Done():
			return nil
		}
	}
}

func waitForNotices(ctx context.Context, n Notices) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-n.Changes():
			return noticesMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) restore() tea.Cmd {
	ctx, auth := m.ctx, m.deps.Auth
	return func() tea.Msg {
		sess, err := auth.Restore(ctx)
		return sessionMsg{sess: sess, err: err, restored: true}
	}
}

func (m Model) loadChats() tea.Cmd {
	ctx, chats := m.ctx, m.deps.Chats
	return func() tea.Msg {
		entries, err := chats.List(ctx)
		return chatsMsg{entries: entries, err: err}
	}
}

// action runs fn off the update loop and reports its outcome.
func (m Model) action(name string, messageID int64, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionMsg{action: name, messageID: messageID, err: fn(ctx)}
	}
}

func (m Model) signOut() (Model, tea.Cmd) {
	m.screen = screenLogin
	m.user = domain.User{}
	m.login.reset()
	m.chats = newChatList()
	ctx, auth, thread := m.ctx, m.deps.Auth, m.deps.Thread
	return m, func() tea.Msg {
		if thread != nil {
			_ = thread.Close(ctx)
		}
		_ = auth.Logout(ctx)
		return loggedOutMsg{}
	}
}

// authLost reports whether err means the session is gone and the user has
// to log in again.
func authLost(err error) bool {
	return err != nil && dmchat_errors.Classify(err) == dmchat_errors.KindAuth
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.chat.resize(msg.Width, msg.Height-chromeHeight)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case sessionMsg:
		return m.handleSession(msg)

	case chatsMsg:
		m.chats.loading = false
		if msg.err != nil {
			if authLost(msg.err) {
				return m.signOut()
			}
			return m, nil
		}
		m.chats.setEntries(msg.entries)
		return m, nil

	case chatCreatedMsg:
		m.chats.pending = false
		if msg.err != nil {
			if authLost(msg.err) {
				return m.signOut()
			}
			return m, nil
		}
		m.chats.input.Reset()
		m.chats.focusID = msg.chatID
		m.chats.loading = true
		return m, m.loadChats()

	case viewMsg:
		m.chat.setView(msg.view)
		m.chat.refresh(m.theme, m.deps.ResolveURL)
		return m, waitForView(m.ctx, m.deps.Thread)

	case noticesMsg:
		m.notices = m.deps.Notices.Active()
		return m, waitForNotices(m.ctx, m.deps.Notices)

	case tickMsg:
		if m.deps.Notices != nil {
			m.notices = m.deps.Notices.Active()
		}
		return m, tick()

	case actionMsg:
		return m.handleAction(msg)

	case loggedOutMsg:
		m.log.Logger.Debug("signed out")
		return m, nil
	}

	switch m.screen {
	case screenLogin:
		return m.updateLogin(msg)
	case screenRegister:
		return m.updateRegister(msg)
	case screenChats:
		return m.updateChats(msg)
	case screenChat:
		return m.updateChat(msg)
	}
	return m, nil
}

func (m Model) handleSession(msg sessionMsg) (tea.Model, tea.Cmd) {
	m.restoring = false
	m.login.pending = false
	m.register.pending = false
	if msg.err != nil {
		if !msg.restored {
			m.login.clearSecrets()
			m.register.clearSecrets()
		}
		m.log.Logger.Debug("not signed in", zap.Error(msg.err))
		return m, nil
	}

	m.user = msg.sess.User
	m.login.reset()
	m.register.reset()
	m.screen = screenChats
	m.chats.loading = true
	focus := m.chats.input.Focus()
	return m, tea.Batch(focus, m.loadChats())
}

func (m Model) handleAction(msg actionMsg) (tea.Model, tea.Cmd) {
	if authLost(msg.err) {
		return m.signOut()
	}
	if msg.err != nil {
		m.log.Logger.Debug("action failed", zap.String("action", msg.action), zap.Error(msg.err))
	}

	switch msg.action {
	case actionSubmit:
		m.chat.pending = false
		if msg.err == nil {
			m.chat.input.Reset()
			m.chat.attachment = nil
		}
	case actionEdit:
		if msg.err == nil {
			if original, ok := m.chat.view.Message(msg.messageID); ok {
				m.chat.input.SetValue(original.Content)
				m.chat.input.CursorEnd()
			}
		}
	case actionCancel:
		m.chat.input.Reset()
		m.chat.attachment = nil
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			return m, m.login.move(1)
		case "shift+tab", "up":
			return m, m.login.move(-1)
		case "ctrl+n":
			m.screen = screenRegister
			return m, nil
		case "enter":
			if !m.login.last() {
				return m, m.login.move(1)
			}
			if m.login.pending || m.restoring {
				return m, nil
			}
			m.login.pending = true
			v := m.login.values()
			ctx, auth := m.ctx, m.deps.Auth
			return m, func() tea.Msg {
				sess, err := auth.Login(ctx, v[0], v[1])
				return sessionMsg{sess: sess, err: err}
			}
		}
	}
	return m, m.login.update(msg)
}

func (m Model) updateRegister(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			return m, m.register.move(1)
		case "shift+tab", "up":
			return m, m.register.move(-1)
		case "esc":
			m.screen = screenLogin
			return m, nil
		case "enter":
			if !m.register.last() {
				return m, m.register.move(1)
			}
			if m.register.pending {
				return m, nil
			}
			m.register.pending = true
			v := m.register.values()
			in := services.RegisterInput{Username: v[0], DisplayName: v[1], Email: v[2], Password: v[3]}
			ctx, auth := m.ctx, m.deps.Auth
			return m, func() tea.Msg {
				sess, err := auth.Register(ctx, in)
				return sessionMsg{sess: sess, err: err}
			}
		}
	}
	return m, m.register.update(msg)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.topBar())
	b.WriteString("\n\n")

	switch m.screen {
	case screenLogin:
		b.WriteString(m.theme.title.Render("Sign in"))
		b.WriteString("\n\n")
		if m.restoring {
			b.WriteString(m.theme.muted.Render("Restoring session..."))
			b.WriteString("\n")
		}
		b.WriteString(m.login.view(m.theme))
		b.WriteString("\n")
		b.WriteString(m.theme.muted.Render("enter: next/submit  ctrl+n: create account  ctrl+c: quit"))
	case screenRegister:
		b.WriteString(m.theme.title.Render("Create account"))
		b.WriteString("\n\n")
		b.WriteString(m.register.view(m.theme))
		b.WriteString("\n")
		b.WriteString(m.theme.muted.Render("enter: next/submit  esc: back to sign in"))
	case screenChats:
		b.WriteString(m.chats.render(m.theme))
	case screenChat:
		b.WriteString(m.chat.render(m.theme))
	}

	if notes := m.renderNotices(); notes != "" {
		b.WriteString("\n\n")
		b.WriteString(notes)
	}
	return b.String()
}

func (m Model) topBar() string {
	bar := m.theme.title.Render("dmchat")
	if m.user.Username != "" {
		bar += "  " + m.theme.muted.Render("Hello, "+m.user.Name()+"!")
	}
	return bar
}

func (m Model) renderNotices() string {
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		style := m.theme.info
		switch n.Level {
		case notify.LevelSuccess:
			style = m.theme.success
		case notify.LevelError:
			style = m.theme.failure
		}
		lines = append(lines, style.Render("• "+n.Text))
	}
	return strings.Join(lines, "\n")
}
