package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type field struct {
	label       string
	placeholder string
	secret      bool
}

// form is a vertical list of text inputs with one focused at a time.
type form struct {
	labels  []string
	inputs  []textinput.Model
	focus   int
	pending bool
}

func newForm(fields ...field) form {
	f := form{}
	for i, fd := range fields {
		in := textinput.New()
		in.Placeholder = fd.placeholder
		in.CharLimit = 128
		in.Width = 32
		if fd.secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		if i == 0 {
			in.Focus()
		}
		f.labels = append(f.labels, fd.label)
		f.inputs = append(f.inputs, in)
	}
	return f
}

func newLoginForm() form {
	return newForm(
		field{label: "Username", placeholder: "username"},
		field{label: "Password", placeholder: "password", secret: true},
	)
}

func newRegisterForm() form {
	return newForm(
		field{label: "Username", placeholder: "username"},
		field{label: "Display name", placeholder: "how others see you"},
		field{label: "Email", placeholder: "you@example.com"},
		field{label: "Password", placeholder: "8+ letters or digits, one digit", secret: true},
	)
}

// move shifts focus by delta, wrapping around.
func (f *form) move(delta int) tea.Cmd {
	f.inputs[f.focus].Blur()
	n := len(f.inputs)
	f.focus = ((f.focus+delta)%n + n) % n
	return f.inputs[f.focus].Focus()
}

func (f form) last() bool {
	return f.focus == len(f.inputs)-1
}

func (f form) values() []string {
	out := make([]string, len(f.inputs))
	for i, in := range f.inputs {
		out[i] = in.Value()
	}
	return out
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// clearSecrets empties password fields after a failed attempt.
func (f *form) clearSecrets() {
	for i := range f.inputs {
		if f.inputs[i].EchoMode == textinput.EchoPassword {
			f.inputs[i].Reset()
		}
	}
}

func (f *form) reset() {
	for i := range f.inputs {
		f.inputs[i].Reset()
		f.inputs[i].Blur()
	}
	f.focus = 0
	f.pending = false
	f.inputs[0].Focus()
}

func (f form) view(th theme) string {
	var b strings.Builder
	for i, in := range f.inputs {
		label := th.label.Render(f.labels[i])
		if i == f.focus {
			label = th.selected.Inherit(th.label).Render(f.labels[i])
		}
		b.WriteString(label)
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	return b.String()
}
