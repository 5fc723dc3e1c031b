package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"adjutant/internal/domain"
)

func newChatTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sizedModel(t *testing.T, deps ModelDeps) Model {
	t.Helper()
	m := NewModel(deps)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func typeAndEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	for _, r := range text {
		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(Model)
	}
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

func TestModelSubmitStartsCycle(t *testing.T) {
	var gotGen uint64
	deps := ModelDeps{
		Handler:   func(_ context.Context, _ domain.InboundMessage) error { return nil },
		OnGenBump: func(gen uint64) { gotGen = gen },
	}

	m, cmd := typeAndEnter(t, sizedModel(t, deps), "rank the backlog")

	if !m.waiting {
		t.Error("model should be waiting after submit")
	}
	if cmd == nil {
		t.Fatal("submit should return a handler command")
	}
	if gotGen != 1 {
		t.Errorf("gen = %d, want 1", gotGen)
	}
	if len(m.transcript) != 1 || m.transcript[0].role != roleUser {
		t.Errorf("transcript = %+v", m.transcript)
	}
}

func TestModelOutboundAppendsReply(t *testing.T) {
	m, _ := typeAndEnter(t, sizedModel(t, ModelDeps{
		Handler: func(_ context.Context, _ domain.InboundMessage) error { return nil },
	}), "hello")

	updated, _ := m.Update(OutboundMsg{
		Message: domain.OutboundMessage{Content: "**plan ready**"},
		Gen:     m.gen,
	})
	m = updated.(Model)

	if m.waiting {
		t.Error("reply should end the waiting state")
	}
	if len(m.transcript) != 2 || m.transcript[1].role != roleAgents {
		t.Errorf("transcript = %+v", m.transcript)
	}
}

func TestModelDiscardsStaleReply(t *testing.T) {
	m, _ := typeAndEnter(t, sizedModel(t, ModelDeps{
		Handler: func(_ context.Context, _ domain.InboundMessage) error { return nil },
	}), "hello")

	updated, _ := m.Update(OutboundMsg{
		Message: domain.OutboundMessage{Content: "late"},
		Gen:     m.gen + 5,
	})
	m = updated.(Model)

	if len(m.transcript) != 1 {
		t.Errorf("stale reply appended: %+v", m.transcript)
	}
	if !m.waiting {
		t.Error("stale reply must not end the waiting state")
	}
}

func TestModelHandlerErrorShown(t *testing.T) {
	m, _ := typeAndEnter(t, sizedModel(t, ModelDeps{
		Handler: func(_ context.Context, _ domain.InboundMessage) error { return nil },
	}), "hello")

	updated, _ := m.Update(HandlerDoneMsg{Err: domain.ErrAgentFailed, Gen: m.gen})
	m = updated.(Model)

	if len(m.transcript) != 2 || m.transcript[1].role != roleError {
		t.Errorf("transcript = %+v", m.transcript)
	}
}

func TestModelSlashCommands(t *testing.T) {
	m := sizedModel(t, ModelDeps{})

	m, _ = typeAndEnter(t, m, "/help")
	if len(m.transcript) != 1 || m.transcript[0].role != roleSystem {
		t.Errorf("/help transcript = %+v", m.transcript)
	}

	m, _ = typeAndEnter(t, m, "/clear")
	if len(m.transcript) != 0 {
		t.Errorf("/clear left %d entries", len(m.transcript))
	}

	m, cmd := typeAndEnter(t, m, "/quit")
	if cmd == nil || !m.quitting {
		t.Error("/quit should quit the program")
	}
}

func TestModelCancelViaCtrlC(t *testing.T) {
	m, _ := typeAndEnter(t, sizedModel(t, ModelDeps{
		Handler: func(ctx context.Context, _ domain.InboundMessage) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}), "slow request")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)

	if m.waiting {
		t.Error("ctrl+c should cancel the waiting state")
	}
	if m.quitting {
		t.Error("ctrl+c during a request must cancel, not quit")
	}

	last := m.transcript[len(m.transcript)-1]
	if last.role != roleSystem || !strings.Contains(last.content, "cancelled") {
		t.Errorf("last entry = %+v", last)
	}
}

func TestModelIgnoresInputWhileWaiting(t *testing.T) {
	m, _ := typeAndEnter(t, sizedModel(t, ModelDeps{
		Handler: func(_ context.Context, _ domain.InboundMessage) error { return nil },
	}), "first")

	m2, cmd := typeAndEnter(t, m, "second")
	if cmd != nil {
		t.Error("submit while waiting should be ignored")
	}
	if len(m2.transcript) != 1 {
		t.Errorf("transcript = %+v", m2.transcript)
	}
}

func TestModelActivityLine(t *testing.T) {
	m := sizedModel(t, ModelDeps{})

	updated, _ := m.Update(AgentActivityMsg{Agent: "prioritizer"})
	m = updated.(Model)
	if m.activity != "prioritizer working" {
		t.Errorf("activity = %q", m.activity)
	}

	updated, _ = m.Update(ToolActivityMsg{Tool: "backlog_search"})
	m = updated.(Model)
	if m.activity != "tool backlog_search" {
		t.Errorf("activity = %q", m.activity)
	}

	updated, _ = m.Update(ToolActivityMsg{Tool: "backlog_search", Done: true})
	m = updated.(Model)
	if m.activity != "" {
		t.Errorf("activity = %q, want cleared", m.activity)
	}
}

func TestTUIChannelName(t *testing.T) {
	ch := NewTUIChannel(newChatTestLogger())
	if ch.Name() != "tui" {
		t.Errorf("Name = %q", ch.Name())
	}
	if ch.sessionID != DefaultSessionID {
		t.Errorf("sessionID = %q", ch.sessionID)
	}
}

func TestTUIChannelOptions(t *testing.T) {
	ch := NewTUIChannel(newChatTestLogger(), WithTUISession("ops"))
	if ch.sessionID != "ops" {
		t.Errorf("sessionID = %q", ch.sessionID)
	}
}

func TestTUIChannelSendBeforeStart(t *testing.T) {
	ch := NewTUIChannel(newChatTestLogger())
	if err := ch.Send(context.Background(), domain.OutboundMessage{Content: "x"}); err != nil {
		t.Errorf("Send before Start: %v", err)
	}
	if err := ch.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestPayloadField(t *testing.T) {
	if got := payloadField(json.RawMessage(`{"agent":"researcher"}`), "agent"); got != "researcher" {
		t.Errorf("got %q", got)
	}
	if got := payloadField(json.RawMessage(`{broken`), "agent"); got != "?" {
		t.Errorf("got %q", got)
	}
	if got := payloadField(nil, "agent"); got != "?" {
		t.Errorf("got %q", got)
	}
}
