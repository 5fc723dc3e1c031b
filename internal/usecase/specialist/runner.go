package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adjutant/internal/domain"
)

// History windows: round-table turns see more of the discussion but each
// message truncated; focused turns see fewer messages in full.
const (
	conciseHistoryWindow = 12
	fullHistoryWindow    = 8
	conciseMessageChars  = 400
)

// Runner executes persona agents (challenger, writer, researcher, customs)
// as a conversational tool-call loop. The loop is bounded; a model that
// keeps asking for tools past the round limit is cut off with an error
// rather than allowed to spin.
type Runner struct {
	llm       domain.LLMProvider
	tools     domain.ToolExecutor
	maxRounds int
	bus       domain.EventBus
	log       *slog.Logger
}

// NewRunner builds the persona runner. maxRounds bounds tool-call rounds
// per turn; zero means 5. tools may be nil when no tools are wired.
func NewRunner(llm domain.LLMProvider, tools domain.ToolExecutor, maxRounds int, bus domain.EventBus, log *slog.Logger) *Runner {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{llm: llm, tools: tools, maxRounds: maxRounds, bus: bus, log: log}
}

// Run executes one persona turn.
func (r *Runner) Run(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	tools := r.scopedTools(call.Descriptor)
	messages := r.buildMessages(call)

	for round := 0; round < r.maxRounds; round++ {
		r.publish(domain.EventLLMCallStarted, call.SessionID, nil)
		resp, err := r.llm.Chat(ctx, domain.ChatRequest{
			Messages: messages,
			Tools:    toolSchemas(tools),
		})
		if err != nil {
			return nil, domain.WrapOp("Runner.Run", err)
		}
		r.publish(domain.EventLLMCallCompleted, call.SessionID, nil)

		msg := resp.Message
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			return &domain.AgentOutput{
				AgentKey: call.Descriptor.Key,
				Label:    call.Descriptor.Label,
				Text:     msg.Content,
			}, nil
		}

		r.log.Debug("persona tool round",
			"agent", call.Descriptor.Key, "round", round, "calls", len(msg.ToolCalls))

		// Execute the round's tool calls in parallel, keeping call order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, tc := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, tc domain.ToolCall) {
				defer wg.Done()
				toolMsgs[idx] = r.executeTool(ctx, call.SessionID, tools, tc)
			}(i, tc)
		}
		wg.Wait()
		messages = append(messages, toolMsgs...)
	}

	return nil, domain.NewSubSystemError("specialist", "Runner.Run", domain.ErrMaxIterations,
		fmt.Sprintf("agent %q still requesting tools after %d rounds", call.Descriptor.Key, r.maxRounds))
}

func (r *Runner) executeTool(ctx context.Context, sessionID string, tools map[string]domain.Tool, tc domain.ToolCall) domain.Message {
	msg := domain.Message{
		Role:      domain.RoleTool,
		Name:      tc.Name,
		ToolCalls: []domain.ToolCall{{ID: tc.ID, Name: tc.Name}},
		Timestamp: time.Now().UTC(),
	}

	tool, ok := tools[tc.Name]
	if !ok {
		msg.Content = fmt.Sprintf("tool %q is not available to this agent", tc.Name)
		return msg
	}

	r.publish(domain.EventToolCallStarted, sessionID, map[string]string{"tool": tc.Name})
	result, err := tool.Execute(ctx, tc.Arguments)
	r.publish(domain.EventToolCallCompleted, sessionID, map[string]string{
		"tool": tc.Name, "success": fmt.Sprintf("%v", err == nil),
	})
	if err != nil {
		msg.Content = err.Error()
		return msg
	}
	msg.Content = result.Content
	return msg
}

// scopedTools resolves the descriptor's tool allowlist against the
// executor. Agents without an allowlist run tool-free.
func (r *Runner) scopedTools(d domain.AgentDescriptor) map[string]domain.Tool {
	if r.tools == nil || len(d.Tools) == 0 {
		return nil
	}
	out := make(map[string]domain.Tool, len(d.Tools))
	for _, name := range d.Tools {
		tool, err := r.tools.Get(name)
		if err != nil {
			r.log.Warn("allowlisted tool not registered", "agent", d.Key, "tool", name)
			continue
		}
		out[name] = tool
	}
	return out
}

func toolSchemas(tools map[string]domain.Tool) []domain.ToolSchema {
	if len(tools) == 0 {
		return nil
	}
	out := make([]domain.ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Schema())
	}
	return out
}

// buildMessages assembles system prompt, bounded history, and the user
// message for one persona turn.
func (r *Runner) buildMessages(call domain.AgentCall) []domain.Message {
	messages := []domain.Message{{
		Role:      domain.RoleSystem,
		Content:   personaPrompt(call),
		Timestamp: time.Now().UTC(),
	}}
	messages = append(messages, boundedHistory(call.History, call.Concise)...)
	messages = append(messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   call.Message,
		Timestamp: time.Now().UTC(),
	})
	return messages
}

// boundedHistory windows the session history: the last 12 messages
// truncated per message for round-tables, the last 8 in full otherwise.
func boundedHistory(history []domain.Message, concise bool) []domain.Message {
	window := fullHistoryWindow
	if concise {
		window = conciseHistoryWindow
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	if !concise {
		return history
	}
	out := make([]domain.Message, len(history))
	for i, m := range history {
		m.Content = truncate(m.Content, conciseMessageChars)
		out[i] = m
	}
	return out
}

func personaPrompt(call domain.AgentCall) string {
	var sb strings.Builder
	persona := call.Descriptor.Persona
	if persona == "" {
		persona = fmt.Sprintf("You are %s. Your specialty: %s.", call.Descriptor.Label, call.Descriptor.Specialty)
	}
	sb.WriteString(persona)

	if len(call.Roster) > 0 {
		sb.WriteString("\n\nYou are one voice on a team. The others")
		if call.Concise {
			sb.WriteString(" are answering this same message")
		}
		sb.WriteString(":\n")
		for _, d := range call.Roster {
			if d.Key == call.Descriptor.Key {
				continue
			}
			fmt.Fprintf(&sb, "- %s: %s\n", d.Label, d.Specialty)
		}
		sb.WriteString("Speak only for your own specialty; do not answer for them.")
	}

	if call.Snapshot != nil {
		sb.WriteString("\n\n")
		sb.WriteString(snapshotDigest(call.Snapshot))
	}
	if len(call.Documents) > 0 {
		sb.WriteString("\n\nAttached documents:\n")
		for _, doc := range call.Documents {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", doc.Name, truncate(doc.Text, 3000))
		}
	}
	if call.Concise {
		sb.WriteString("\n\nThis is a round-table: contribute your single strongest point in under 120 words, no preamble.")
	}
	return sb.String()
}

// snapshotDigest gives persona agents a compact read-only view of the
// shared records.
func snapshotDigest(snap *domain.RecordSnapshot) string {
	var sb strings.Builder
	open := snap.OpenRequests()
	fmt.Fprintf(&sb, "Shared records: %d open requests, %d plans, %d insights.\n", len(open), len(snap.Plans), len(snap.Insights))

	shown := 0
	for i := len(open) - 1; i >= 0 && shown < 5; i-- {
		r := open[i]
		fmt.Fprintf(&sb, "- request %s [%s]: %s\n", r.ID, r.Priority, truncate(r.Description, 80))
		shown++
	}
	if len(snap.Plans) > 0 {
		latest := snap.Plans[len(snap.Plans)-1]
		fmt.Fprintf(&sb, "- latest plan %s (%s), %d focus items\n", latest.ID, latest.Date, len(latest.FocusItems))
	}
	return sb.String()
}

func (r *Runner) publish(t domain.EventType, sessionID string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(domain.NewEvent(t, sessionID, payload))
}
