package usecase

import (
	"log/slog"
	"sync"

	"adjutant/internal/domain"

	"github.com/pkoukk/tiktoken-go"
)

// ContextBuilder bounds the conversation history handed to agents so one
// long session cannot blow the completion context window. The budget is
// counted in tokens via tiktoken; when the encoding for the configured
// model is unavailable (offline first run, unknown model) it degrades to
// a bytes/4 heuristic rather than failing the cycle.
type ContextBuilder struct {
	budget int
	model  string
	log    *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewContextBuilder creates a builder with the given token budget.
// budget <= 0 disables token bounding (message-count truncation in the
// session manager still applies).
func NewContextBuilder(budget int, model string, log *slog.Logger) *ContextBuilder {
	if log == nil {
		log = slog.Default()
	}
	return &ContextBuilder{budget: budget, model: model, log: log}
}

// BoundHistory returns the longest suffix of history that fits the token
// budget. Messages are dropped oldest-first and never split; an
// assistant message with tool calls keeps its following tool results so
// truncation cannot break a tool chain mid-exchange.
func (cb *ContextBuilder) BoundHistory(history []domain.Message) []domain.Message {
	if cb.budget <= 0 || len(history) == 0 {
		return history
	}

	groups := groupMessages(history)
	total := 0
	var kept [][]domain.Message
	for i := len(groups) - 1; i >= 0; i-- {
		cost := 0
		for _, m := range groups[i] {
			cost += cb.CountTokens(m.Content) + 4 // per-message framing overhead
		}
		if total+cost > cb.budget && total > 0 {
			break
		}
		kept = append(kept, groups[i])
		total += cost
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	out := make([]domain.Message, 0, len(history))
	for _, g := range kept {
		out = append(out, g...)
	}
	return out
}

// CountTokens counts tokens in s under the configured model's encoding,
// falling back to len/4 when the encoding cannot be loaded.
func (cb *ContextBuilder) CountTokens(s string) int {
	cb.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(cb.model)
		if err != nil {
			cb.log.Warn("token encoding unavailable, using heuristic count",
				"model", cb.model, "error", err)
			return
		}
		cb.enc = enc
	})
	if cb.enc == nil {
		return len(s) / 4
	}
	return len(cb.enc.Encode(s, nil, nil))
}

// groupMessages partitions messages into atomic groups: an assistant
// message with tool calls and its immediately following tool results
// form one group, everything else stands alone.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}
