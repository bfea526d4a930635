package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"dmchat/internal/services"
)

type chatList struct {
	entries  []services.ChatEntry
	selected int
	// focusID selects this chat once it shows up in the list.
	focusID int64
	input   textinput.Model
	loading bool
	pending bool
}

func newChatList() chatList {
	in := textinput.New()
	in.Placeholder = "add a friend by username"
	in.CharLimit = 64
	in.Width = 32
	return chatList{input: in}
}

func (l *chatList) setEntries(entries []services.ChatEntry) {
	l.entries = entries
	if l.focusID != 0 {
		for i, e := range entries {
			if e.Chat.ID == l.focusID {
				l.selected = i
			}
		}
		l.focusID = 0
	}
	if l.selected >= len(entries) {
		l.selected = len(entries) - 1
	}
	if l.selected < 0 {
		l.selected = 0
	}
}

func (l chatList) current() (services.ChatEntry, bool) {
	if l.selected < 0 || l.selected >= len(l.entries) {
		return services.ChatEntry{}, false
	}
	return l.entries[l.selected], true
}

func (m Model) updateChats(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.chats.input, cmd = m.chats.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "up":
		if m.chats.selected > 0 {
			m.chats.selected--
		}
		return m, nil
	case "down":
		if m.chats.selected < len(m.chats.entries)-1 {
			m.chats.selected++
		}
		return m, nil
	case "ctrl+r":
		m.chats.loading = true
		return m, m.loadChats()
	case "ctrl+l":
		return m.signOut()
	case "esc":
		m.chats.input.Reset()
		return m, nil
	case "enter":
		if name := strings.TrimSpace(m.chats.input.Value()); name != "" {
			if m.chats.pending {
				return m, nil
			}
			m.chats.pending = true
			ctx, chats := m.ctx, m.deps.Chats
			return m, func() tea.Msg {
				id, err := chats.Create(ctx, name)
				return chatCreatedMsg{chatID: id, err: err}
			}
		}
		entry, ok := m.chats.current()
		if !ok {
			return m, nil
		}
		return m.openChat(entry)
	}

	var cmd tea.Cmd
	m.chats.input, cmd = m.chats.input.Update(msg)
	return m, cmd
}

func (m Model) openChat(entry services.ChatEntry) (tea.Model, tea.Cmd) {
	m.screen = screenChat
	m.chats.input.Blur()
	m.chat = newChatView(entry, m.width, m.height-chromeHeight)
	focus := m.chat.input.Focus()
	thread := m.deps.Thread
	open := m.action(actionOpen, 0, func(ctx context.Context) error {
		return thread.Open(ctx, entry.Chat.ID)
	})
	return m, tea.Batch(focus, open)
}

func (l chatList) render(th theme) string {
	var b strings.Builder
	b.WriteString(th.title.Render("Chats"))
	b.WriteString("\n\n")

	switch {
	case l.loading && len(l.entries) == 0:
		b.WriteString(th.muted.Render("Loading chats..."))
		b.WriteString("\n")
	case len(l.entries) == 0:
		b.WriteString(th.muted.Render("No chats yet. Add a friend below."))
		b.WriteString("\n")
	}

	for i, e := range l.entries {
		line := fmt.Sprintf("%s  @%s", e.Counterpart.Name(), e.Counterpart.Username)
		if i == l.selected {
			b.WriteString(th.selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(l.input.View())
	b.WriteString("\n\n")
	b.WriteString(th.muted.Render("up/down: select  enter: open or add  ctrl+r: reload  ctrl+l: sign out"))
	return b.String()
}
