package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"adjutant/internal/domain"
)

const helpText = `Commands:

  /help     show this help
  /clear    clear the transcript
  /cancel   cancel the active request (also ctrl+c)
  /quit     exit

Just talk naturally; the agents route the message themselves.`

// TUIChannel implements domain.Channel with a Bubble Tea program.
type TUIChannel struct {
	logger    *slog.Logger
	program   *tea.Program
	sessionID string
	gen       atomic.Uint64
	bus       domain.EventBus // optional; nil disables the activity line
}

// TUIOption configures the TUI channel.
type TUIOption func(*TUIChannel)

// WithTUISession sets the session ID for the terminal conversation.
func WithTUISession(id string) TUIOption {
	return func(c *TUIChannel) { c.sessionID = id }
}

// WithTUIEventBus enables the live specialist/tool activity line.
func WithTUIEventBus(bus domain.EventBus) TUIOption {
	return func(c *TUIChannel) { c.bus = bus }
}

// NewTUIChannel creates the terminal chat channel.
func NewTUIChannel(logger *slog.Logger, opts ...TUIOption) *TUIChannel {
	c := &TUIChannel{
		logger:    logger,
		sessionID: DefaultSessionID,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TUIChannel) Name() string { return "tui" }

// Start runs the Bubble Tea program and blocks until it exits.
func (c *TUIChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	model := NewModel(ModelDeps{
		Handler:   handler,
		SessionID: c.sessionID,
		OnGenBump: func(gen uint64) { c.gen.Store(gen) },
	})

	c.program = tea.NewProgram(model, tea.WithAltScreen())

	if c.bus != nil {
		unsubs := []func(){
			c.bus.Subscribe(domain.EventAgentStarted, func(_ context.Context, e domain.Event) {
				c.program.Send(AgentActivityMsg{Agent: payloadField(e.Payload, "agent")})
			}),
			c.bus.Subscribe(domain.EventAgentFinished, func(_ context.Context, e domain.Event) {
				c.program.Send(AgentActivityMsg{Agent: payloadField(e.Payload, "agent"), Done: true})
			}),
			c.bus.Subscribe(domain.EventAgentFailed, func(_ context.Context, e domain.Event) {
				c.program.Send(AgentActivityMsg{Agent: payloadField(e.Payload, "agent"), Fail: true})
			}),
			c.bus.Subscribe(domain.EventToolCallStarted, func(_ context.Context, e domain.Event) {
				c.program.Send(ToolActivityMsg{Tool: payloadField(e.Payload, "tool")})
			}),
			c.bus.Subscribe(domain.EventToolCallCompleted, func(_ context.Context, e domain.Event) {
				c.program.Send(ToolActivityMsg{Tool: payloadField(e.Payload, "tool"), Done: true})
			}),
		}
		defer func() {
			for _, u := range unsubs {
				u()
			}
		}()
	}

	go func() {
		<-ctx.Done()
		if c.program != nil {
			c.program.Send(QuitMsg{})
		}
	}()

	_, err := c.program.Run()
	return err
}

func (c *TUIChannel) Stop(_ context.Context) error {
	if c.program != nil {
		c.program.Send(QuitMsg{})
	}
	return nil
}

// Send pushes a merged cycle reply into the update loop. Called from the
// orchestrator goroutine; the current gen is attached so the UI can drop
// replies to cancelled requests.
func (c *TUIChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	if c.program != nil {
		c.program.Send(OutboundMsg{Message: msg, Gen: c.gen.Load()})
	}
	return nil
}

func payloadField(raw json.RawMessage, key string) string {
	var m map[string]any
	if raw == nil || json.Unmarshal(raw, &m) != nil {
		return "?"
	}
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return "?"
}
