package tui

import (
	"context"
	"fmt"
	"strings"

	"copbot/internal/chat"
	"copbot/internal/models"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
)

// answerMsg arrives when an ask command completes.
type answerMsg struct {
	reply models.Message
	err   error
}

// Model is the Bubble Tea model for the terminal chat.
type Model struct {
	ctx      context.Context
	svc      *chat.Service
	session  *chat.Session
	input    textinput.Model
	viewport viewport.Model
	width    int
	busy     bool
	status   string
	ready    bool
}

func New(ctx context.Context, svc *chat.Service, session *chat.Session) Model {
	svc.EnsureWelcome(session)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = chat.Text(session.Language()).Placeholder
	ti.Focus()
	ti.CharLimit = 0

	m := Model{ctx: ctx, svc: svc, session: session, input: ti, viewport: viewport.New(80, 10), width: 80}
	m.status = m.help()
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = max(20, msg.Width)
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 5 + qh // title, actions, status, disclaimer, spacer
		m.viewport.Width = m.width
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		m.status = m.help()
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+t":
			m.toggleLanguage()
			return m, nil
		case "f1", "f2", "f3", "f4", "f5":
			if m.busy {
				return m, nil
			}
			idx := int(msg.String()[1] - '1')
			m.busy = true
			m.status = "Thinking..."
			return m, m.quickAction(idx)
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking..."
			return m, m.ask(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(text string) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{reply: m.svc.Ask(m.ctx, m.session, text)}
	}
}

func (m Model) quickAction(idx int) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.svc.QuickAction(m.ctx, m.session, idx)
		return answerMsg{reply: reply, err: err}
	}
}

func (m *Model) toggleLanguage() {
	next := language.Tamil
	if base, _ := m.session.Language().Base(); base.String() == "ta" {
		next = language.English
	}
	m.session.SetLanguage(next)
	m.input.Placeholder = chat.Text(next).Placeholder
	m.status = m.help()
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) help() string {
	return fmt.Sprintf("%s: %s (ctrl+t) · enter send · esc quit", chat.LanguageLabel, chat.Text(m.session.Language()).Name)
}

func (m Model) View() string {
	if !m.ready {
		return "Bot is warming up..."
	}
	text := chat.Text(m.session.Language())

	var actions []string
	for i, b := range text.Buttons {
		actions = append(actions, actionStyle.Render(fmt.Sprintf("F%d %s", i+1, b)))
	}

	return titleStyle.Width(m.width).Render(text.Title) + "\n" +
		m.viewport.View() + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, actions...) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status) + "\n" +
		disclaimerStyle.Width(m.width).Render(text.Disclaimer)
}

func (m Model) renderHistory() string {
	width := max(20, m.width-2)
	var b strings.Builder
	for _, msg := range m.session.Messages() {
		label, style := "Bot", botStyle
		if msg.Role == models.RoleUser {
			label, style = "You", userStyle
		}
		b.WriteString(style.Render(label+":") + " ")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Foreground(lipgloss.Color("9"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	actionStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	disclaimerStyle = lipgloss.NewStyle().Faint(true).Align(lipgloss.Center)
)
