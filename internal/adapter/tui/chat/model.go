package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"adjutant/internal/domain"
)

// DefaultSessionID is the session the terminal conversation runs under.
const DefaultSessionID = "tui"

type role int

const (
	roleUser role = iota
	roleAgents
	roleSystem
	roleError
)

type entry struct {
	role    role
	content string
	at      time.Time
}

// ModelDeps are the dependencies injected into the chat model.
type ModelDeps struct {
	Handler   domain.MessageHandler
	SessionID string
	OnGenBump func(gen uint64)
}

// Model is the root Bubble Tea model for the chat surface.
type Model struct {
	deps ModelDeps

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer

	transcript []entry
	activity   string // current specialist/tool status line

	width, height int
	ready         bool
	waiting       bool
	quitting      bool

	// gen is bumped on every submit; stale replies are discarded.
	gen      uint64
	cancelFn context.CancelFunc
}

// NewModel creates the chat model.
func NewModel(deps ModelDeps) Model {
	if deps.SessionID == "" {
		deps.SessionID = DefaultSessionID
	}

	input := textarea.New()
	input.Placeholder = "Talk to the agents. /help for commands."
	input.Prompt = "> "
	input.CharLimit = 0
	input.SetHeight(2)
	input.ShowLineNumbers = false
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleActivity

	return Model{
		deps:    deps,
		input:   input,
		spinner: s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.markdown = newMarkdownRenderer(m.width - 4)
		m.refresh()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case OutboundMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		r := roleAgents
		if msg.Message.IsError {
			r = roleError
		}
		m.append(r, msg.Message.Content)
		m.settle()
		return m, nil

	case HandlerDoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		if msg.Err != nil && msg.Err != context.Canceled {
			m.append(roleError, msg.Err.Error())
		}
		m.settle()
		return m, nil

	case AgentActivityMsg:
		switch {
		case msg.Fail:
			m.activity = msg.Agent + " failed"
		case msg.Done:
			m.activity = msg.Agent + " done"
		default:
			m.activity = msg.Agent + " working"
		}
		return m, nil

	case ToolActivityMsg:
		if msg.Done {
			m.activity = ""
		} else {
			m.activity = "tool " + msg.Tool
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.quitting {
		return "bye\n"
	}
	if !m.ready {
		return "  starting..."
	}

	inputView := m.input.View()
	if m.waiting {
		line := m.spinner.View() + " thinking"
		if m.activity != "" {
			line += "  " + styleActivity.Render(m.activity)
		}
		inputView = line
	}

	status := styleStatus.Render(
		fmt.Sprintf(" %s | enter send | ctrl+c quit | pgup/pgdn scroll", m.deps.SessionID))

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		strings.Repeat("─", max(m.width, 1)),
		inputView,
		status,
	)
}

func (m *Model) layout() {
	inputH := 2
	statusH := 1
	dividerH := 1
	contentH := m.height - inputH - statusH - dividerH
	if contentH < 3 {
		contentH = 3
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, contentH)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = contentH
	}
	m.input.SetWidth(m.width)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancel("request cancelled")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		if m.waiting {
			return m, nil
		}
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		m.input.Reset()
		return m.submit(value)
	}

	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(value string) (tea.Model, tea.Cmd) {
	switch value {
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	case "/help":
		m.append(roleSystem, helpText)
		return m, nil
	case "/clear":
		m.transcript = nil
		m.refresh()
		return m, nil
	case "/cancel":
		m.append(roleSystem, "no active request")
		return m, nil
	}

	if m.cancelFn != nil {
		m.cancelFn()
	}

	m.append(roleUser, value)
	m.gen++
	if m.deps.OnGenBump != nil {
		m.deps.OnGenBump(m.gen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel
	m.waiting = true
	m.activity = ""
	m.input.Blur()

	inbound := domain.InboundMessage{
		SessionID:   m.deps.SessionID,
		Content:     value,
		ChannelName: "tui",
	}
	return m, tea.Batch(sendMessageCmd(ctx, m.deps.Handler, inbound, m.gen), m.spinner.Tick)
}

// settle returns the UI to the idle state after a cycle completes.
func (m *Model) settle() {
	m.waiting = false
	m.activity = ""
	m.cancelFn = nil
	m.input.Focus()
}

func (m *Model) cancel(reason string) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.gen++
	m.settle()
	m.append(roleSystem, reason)
}

func (m *Model) append(r role, content string) {
	m.transcript = append(m.transcript, entry{role: r, content: content, at: time.Now()})
	m.refresh()
	m.viewport.GotoBottom()
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	var b strings.Builder
	for _, e := range m.transcript {
		switch e.role {
		case roleUser:
			b.WriteString(styleUser.Render("you") + "  " + e.content + "\n\n")
		case roleAgents:
			b.WriteString(styleAgents.Render("agents") + "\n" + m.renderMarkdown(e.content) + "\n")
		case roleSystem:
			b.WriteString(styleSystem.Render(e.content) + "\n\n")
		case roleError:
			b.WriteString(styleError.Render("error: "+e.content) + "\n\n")
		}
	}
	m.viewport.SetContent(b.String())
}

func (m *Model) renderMarkdown(content string) string {
	if m.markdown == nil {
		return content
	}
	out, err := m.markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}
