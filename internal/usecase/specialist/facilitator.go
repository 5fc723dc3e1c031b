package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"adjutant/internal/domain"
)

const facilitatorSummaryPrompt = `You are the discussion facilitator. Summarize where this discussion
stands in at most five sentences: the question on the table, the points
of agreement, the open disagreements, and the next concrete step. Do
not introduce new arguments.`

// Facilitator periodically restates where a discussion stands. It sends
// an intro when a session opens and a summary every N assistant turns
// over a bounded window of recent messages.
type Facilitator struct {
	llm    domain.LLMProvider
	window int
	log    *slog.Logger
}

// Summary cadence defaults and per-message truncation.
const (
	defaultSummaryWindow   = 20
	summaryMessageChars    = 300
	DefaultSummaryInterval = 6
)

// NewFacilitator builds the facilitator. window caps how many recent
// messages a summary reads (zero means 20).
func NewFacilitator(llm domain.LLMProvider, window int, log *slog.Logger) *Facilitator {
	if window <= 0 {
		window = defaultSummaryWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Facilitator{llm: llm, window: window, log: log}
}

// Intro is the message posted when a facilitated session opens. It is
// static: the facilitator has nothing to summarize yet.
func (f *Facilitator) Intro(activeAgents []string) string {
	if len(activeAgents) == 0 {
		return "I'll keep this discussion on track and summarize as we go."
	}
	labels := make([]string, len(activeAgents))
	for i, key := range activeAgents {
		labels[i] = "@" + key
	}
	return fmt.Sprintf("I'll keep this discussion on track. In the room: %s. "+
		"Mention an agent directly or just talk; I'll summarize every few turns.",
		strings.Join(labels, ", "))
}

// Summarize produces a standing summary over the most recent messages.
func (f *Facilitator) Summarize(ctx context.Context, history []domain.Message) (string, error) {
	if len(history) == 0 {
		return "", domain.NewSubSystemError("specialist", "Facilitator.Summarize", domain.ErrInvalidInput,
			"nothing to summarize")
	}
	if len(history) > f.window {
		history = history[len(history)-f.window:]
	}

	var sb strings.Builder
	for _, m := range history {
		if m.Role == domain.RoleTool {
			continue
		}
		speaker := m.Role
		if m.Name != "" {
			speaker = m.Name
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, truncate(m.Content, summaryMessageChars))
	}

	resp, err := f.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: facilitatorSummaryPrompt},
			{Role: domain.RoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return "", domain.WrapOp("Facilitator.Summarize", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
