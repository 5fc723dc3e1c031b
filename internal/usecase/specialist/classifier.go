package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"adjutant/internal/domain"
)

const classifierSystemPrompt = `You route messages to the best-fitting agents on a team. Given the
message and the roster below, answer with a JSON array of at most two
agent keys, best fit first. Answer [] when the message is a plain
factual query that needs no agent judgment.

Roster:
%s`

const recommendSystemPrompt = `You staff discussions. Given the topic and the roster below, pick the
2 to 5 agents whose specialties matter most for it.

Respond with JSON only:
{"agents": ["<key>", ...], "rationale": "<one sentence per pick>"}

Roster:
%s`

// TopicClassifier asks an auxiliary model which agents fit a message.
// It backs rule 4 of the intent router and the session-staffing
// recommendation. All calls run at temperature zero; answers citing
// unknown keys are filtered rather than trusted.
type TopicClassifier struct {
	llm domain.LLMProvider
	log *slog.Logger
}

// NewTopicClassifier builds a classifier over the auxiliary provider.
func NewTopicClassifier(llm domain.LLMProvider, log *slog.Logger) *TopicClassifier {
	if log == nil {
		log = slog.Default()
	}
	return &TopicClassifier{llm: llm, log: log}
}

// Classify returns the best one or two agent keys for the message, or an
// empty slice when no agent-specific nuance exists. Errors propagate so
// the router can apply its conservative round-table fallback.
func (c *TopicClassifier) Classify(ctx context.Context, message string, candidates []domain.AgentDescriptor) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	resp, err := c.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(classifierSystemPrompt, rosterDigest(candidates))},
			{Role: domain.RoleUser, Content: message},
		},
		Temperature: zeroTemp(),
		JSONMode:    true,
	})
	if err != nil {
		return nil, domain.WrapOp("TopicClassifier.Classify", err)
	}

	var keys []string
	if err := decodeResponse(resp.Message.Content, &keys); err != nil {
		return nil, domain.NewSubSystemError("specialist", "TopicClassifier.Classify", domain.ErrProviderError,
			fmt.Sprintf("classification response unparseable: %v", err))
	}
	// More than two keys is the model's way of saying "everyone"; the
	// router treats a long answer as a round-table signal, so pass it
	// through unclipped.
	return filterKnown(keys, candidates), nil
}

// Recommendation is the staffing suggestion for a discussion topic.
type Recommendation struct {
	AgentKeys []string
	Rationale string
}

type recommendResponse struct {
	Agents    []string `json:"agents"`
	Rationale string   `json:"rationale"`
}

// Recommend suggests 2-5 agents for a topic. Errors yield an empty
// recommendation so callers can fall back to the full roster.
func (c *TopicClassifier) Recommend(ctx context.Context, topic string, candidates []domain.AgentDescriptor) (*Recommendation, error) {
	resp, err := c.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(recommendSystemPrompt, rosterDigest(candidates))},
			{Role: domain.RoleUser, Content: topic},
		},
		Temperature: zeroTemp(),
		JSONMode:    true,
	})
	if err != nil {
		return nil, domain.WrapOp("TopicClassifier.Recommend", err)
	}

	var parsed recommendResponse
	if err := decodeResponse(resp.Message.Content, &parsed); err != nil {
		return nil, domain.NewSubSystemError("specialist", "TopicClassifier.Recommend", domain.ErrProviderError,
			fmt.Sprintf("recommendation response unparseable: %v", err))
	}
	valid := filterKnown(parsed.Agents, candidates)
	if len(valid) > 5 {
		valid = valid[:5]
	}
	return &Recommendation{AgentKeys: valid, Rationale: strings.TrimSpace(parsed.Rationale)}, nil
}

// filterKnown drops keys not in the candidate roster, preserving order
// and dropping duplicates.
func filterKnown(keys []string, candidates []domain.AgentDescriptor) []string {
	known := make(map[string]bool, len(candidates))
	for _, d := range candidates {
		known[d.Key] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || !known[k] || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func rosterDigest(candidates []domain.AgentDescriptor) string {
	var sb strings.Builder
	for _, d := range candidates {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Key, d.Specialty)
	}
	return sb.String()
}
