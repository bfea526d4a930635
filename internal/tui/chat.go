package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"dmchat/internal/api"
	"dmchat/internal/domain"
	"dmchat/internal/notify"
	"dmchat/internal/reconciler"
	"dmchat/internal/services"
)

const imageCommand = "/image "

// Rows below the thread: banner, input and help.
const composerHeight = 5

type chatView struct {
	entry services.ChatEntry
	view  reconciler.View
	// selected indexes view.Messages; -1 follows the newest message.
	selected   int
	input      textinput.Model
	thread     viewport.Model
	offsets    []int
	attachment *api.Attachment
	pending    bool
}

func newChatView(entry services.ChatEntry, width, height int) chatView {
	in := textinput.New()
	in.Placeholder = "Write a message, or /image <path> to attach"
	in.CharLimit = 4000
	in.Width = max(width-4, 10)

	return chatView{
		entry:    entry,
		selected: -1,
		input:    in,
		thread:   viewport.New(max(width, 10), max(height-composerHeight, 3)),
	}
}

func (c *chatView) resize(width, height int) {
	c.thread.Width = max(width, 10)
	c.thread.Height = max(height-composerHeight, 3)
	c.input.Width = max(width-4, 10)
}

func (c *chatView) setView(v reconciler.View) {
	c.view = v
	if c.selected >= len(v.Messages) {
		c.selected = len(v.Messages) - 1
	}
}

func (c chatView) current() (domain.Message, bool) {
	if c.selected < 0 || c.selected >= len(c.view.Messages) {
		return domain.Message{}, false
	}
	return c.view.Messages[c.selected], true
}

// refresh re-renders the thread and scrolls the selection into view.
func (c *chatView) refresh(th theme, resolve func(string) string) {
	content, offsets := renderThread(c.view, c.entry.Counterpart.ID, c.selected, th, resolve)
	c.offsets = offsets
	c.thread.SetContent(content)

	if c.selected < 0 || c.selected >= len(offsets) {
		c.thread.GotoBottom()
		return
	}
	line := offsets[c.selected]
	if line < c.thread.YOffset || line >= c.thread.YOffset+c.thread.Height {
		c.thread.SetYOffset(line)
	}
}

func (m Model) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.chat.input, cmd = m.chat.input.Update(msg)
		return m, cmd
	}

	thread := m.deps.Thread
	switch key.String() {
	case "up":
		switch {
		case len(m.chat.view.Messages) == 0:
		case m.chat.selected < 0:
			m.chat.selected = len(m.chat.view.Messages) - 1
		case m.chat.selected > 0:
			m.chat.selected--
		}
		m.chat.refresh(m.theme, m.deps.ResolveURL)
		return m, nil

	case "down":
		if m.chat.selected >= 0 {
			m.chat.selected++
			if m.chat.selected >= len(m.chat.view.Messages) {
				m.chat.selected = -1
			}
		}
		m.chat.refresh(m.theme, m.deps.ResolveURL)
		return m, nil

	case "ctrl+e":
		sel, ok := m.chat.current()
		if !ok || !reconciler.AffordancesFor(sel, m.chat.entry.Counterpart.ID).Edit {
			return m, nil
		}
		return m, m.action(actionEdit, sel.ID, func(ctx context.Context) error {
			return thread.BeginEdit(ctx, sel.ID)
		})

	case "ctrl+r":
		sel, ok := m.chat.current()
		if !ok || !reconciler.AffordancesFor(sel, m.chat.entry.Counterpart.ID).Reply {
			return m, nil
		}
		return m, m.action(actionReply, sel.ID, func(ctx context.Context) error {
			return thread.BeginReply(ctx, sel.ID)
		})

	case "ctrl+d":
		sel, ok := m.chat.current()
		if !ok || !reconciler.AffordancesFor(sel, m.chat.entry.Counterpart.ID).Delete {
			return m, nil
		}
		return m, m.action(actionDelete, sel.ID, func(ctx context.Context) error {
			return thread.Delete(ctx, sel.ID)
		})

	case "esc":
		v := m.chat.view
		if v.Edit != nil || v.Reply != nil || m.chat.attachment != nil {
			return m, m.action(actionCancel, 0, func(ctx context.Context) error {
				return thread.CancelCompose(ctx)
			})
		}
		m.screen = screenChats
		m.chat.input.Blur()
		m.chats.loading = true
		focus := m.chats.input.Focus()
		closeChat := m.action(actionClose, 0, func(ctx context.Context) error {
			return thread.Close(ctx)
		})
		return m, tea.Batch(focus, closeChat, m.loadChats())

	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.chat.input, cmd = m.chat.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.chat.pending {
		return m, nil
	}
	text := m.chat.input.Value()

	if strings.HasPrefix(text, imageCommand) {
		path := strings.TrimSpace(strings.TrimPrefix(text, imageCommand))
		a, err := api.OpenAttachment(path)
		if err != nil {
			m.log.Logger.Debug("attachment rejected", zap.Error(err))
			if m.deps.Notices != nil {
				m.deps.Notices.Add(notify.LevelError, "Could not read "+path)
			}
			return m, nil
		}
		m.chat.attachment = a
		m.chat.input.Reset()
		return m, nil
	}

	m.chat.pending = true
	thread, image := m.deps.Thread, m.chat.attachment
	return m, m.action(actionSubmit, 0, func(ctx context.Context) error {
		return thread.Submit(ctx, text, image)
	})
}

func (c chatView) render(th theme) string {
	var b strings.Builder

	cp := c.entry.Counterpart
	header := th.title.Render(cp.Name()) + "  " + th.muted.Render(fmt.Sprintf("@%s  #%d", cp.Username, c.entry.Chat.ID))
	if c.view.Connected {
		header += "  " + th.online.Render("● live")
	} else {
		header += "  " + th.offline.Render("○ offline")
	}
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(c.thread.View())
	b.WriteString("\n")

	if banner := c.banner(th); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n")
	}
	b.WriteString(c.input.View())
	b.WriteString("\n")
	b.WriteString(th.muted.Render("enter: send  up/down: select  ctrl+e: edit  ctrl+r: reply  ctrl+d: delete  esc: cancel/back"))
	return b.String()
}

func (c chatView) banner(th theme) string {
	var parts []string
	if e := c.view.Edit; e != nil {
		parts = append(parts, th.banner.Render("Editing: "+e.Original))
	}
	if r := c.view.Reply; r != nil {
		parts = append(parts, th.banner.Render("Replying to: "+r.Content))
	}
	if a := c.attachment; a != nil {
		parts = append(parts, th.banner.Render(fmt.Sprintf("Attached: %s (%s)", a.Name, humanize.Bytes(uint64(a.Size())))))
	}
	return strings.Join(parts, "\n")
}

// renderThread draws the messages of v and returns the first line of each
// message alongside the text.
func renderThread(v reconciler.View, counterpartID int64, selected int, th theme, resolve func(string) string) (string, []int) {
	switch {
	case v.Loading && len(v.Messages) == 0:
		return th.muted.Render("Loading messages..."), nil
	case v.Err != nil && len(v.Messages) == 0:
		return th.failure.Render("Could not load messages"), nil
	case len(v.Messages) == 0:
		return th.muted.Render("No messages yet. Say hi!"), nil
	}

	var lines []string
	offsets := make([]int, 0, len(v.Messages))
	for i, msg := range v.Messages {
		offsets = append(offsets, len(lines))

		name := th.own.Render(msg.Sender.Name())
		if msg.Sender.ID == counterpartID {
			name = th.other.Render(msg.Sender.Name())
		}
		marker := "  "
		if i == selected {
			marker = th.selected.Render("> ")
		}
		lines = append(lines, marker+name+"  "+th.muted.Render(msg.SentTime.Local().Format("15:04")))

		if msg.IsReply() {
			lines = append(lines, "    "+th.quote.Render("│ "+msg.ReplyContent))
		}
		if msg.HasImage() {
			lines = append(lines, "    "+th.muted.Render("[image] "+resolve(msg.ImageURL)))
		}
		if msg.Content != "" {
			lines = append(lines, "    "+msg.Content)
		}
	}
	return strings.Join(lines, "\n"), offsets
}
