package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"adjutant/internal/domain"
)

const outputTranscriptWindow = 60

const outputSystemPrompt = `You produce %s from a discussion transcript: %s.

Write structured markdown with a # title on the first line. Ground every
section in the transcript; mark genuinely open points as open instead of
inventing answers.`

// outputRequestPattern matches "generate/create/draft a PRD/summary/..."
// style asks and captures the document phrase.
var outputRequestPattern = regexp.MustCompile(`(?i)\b(?:generate|create|draft|write up|produce)\b(?:\s+(?:a|an|the))?\s+(.{2,40}?)(?:\s+(?:from|of|for|based on)\b|[.!?]|$)`)

// outputTypeKeywords maps phrase fragments to output types, checked in
// order so the more specific phrases win.
var outputTypeKeywords = []struct {
	fragment string
	t        domain.OutputType
}{
	{"prd", domain.OutputPRD},
	{"product requirements", domain.OutputPRD},
	{"architecture", domain.OutputArchitecture},
	{"decision log", domain.OutputDecisionLog},
	{"event plan", domain.OutputEventPlan},
	{"requirements", domain.OutputRequirements},
	{"summary", domain.OutputSummary},
}

// DetectOutputRequest reports whether the message asks for a generated
// document, and which type.
func DetectOutputRequest(message string) (domain.OutputType, bool) {
	m := outputRequestPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	phrase := strings.ToLower(m[1])
	for _, kw := range outputTypeKeywords {
		if strings.Contains(phrase, kw.fragment) {
			return kw.t, true
		}
	}
	if strings.Contains(phrase, "document") || strings.Contains(phrase, "doc") {
		return domain.OutputCustom, true
	}
	return "", false
}

// OutputGenerator turns a session transcript into a structured document.
// This is the writer path of the engine: the draft runs on the main
// completion provider and persists on the session, never in the record
// store.
type OutputGenerator struct {
	llm domain.LLMProvider
	log *slog.Logger
}

// NewOutputGenerator builds the generator.
func NewOutputGenerator(llm domain.LLMProvider, log *slog.Logger) *OutputGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &OutputGenerator{llm: llm, log: log}
}

// Generate drafts a document of the given type from the last turns of
// the history.
func (g *OutputGenerator) Generate(ctx context.Context, t domain.OutputType, history []domain.Message) (*domain.GeneratedOutput, error) {
	meta, ok := domain.OutputTypes[t]
	if !ok {
		return nil, domain.NewSubSystemError("outputs", "Generate", domain.ErrInvalidInput,
			fmt.Sprintf("unknown output type %q", t))
	}
	if len(history) == 0 {
		return nil, domain.NewSubSystemError("outputs", "Generate", domain.ErrInvalidInput,
			"nothing to generate from: the discussion is empty")
	}
	if len(history) > outputTranscriptWindow {
		history = history[len(history)-outputTranscriptWindow:]
	}

	var sb strings.Builder
	for _, m := range history {
		if m.Role == domain.RoleTool || m.Role == domain.RoleSystem {
			continue
		}
		speaker := m.Role
		if m.Name != "" {
			speaker = m.Name
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, m.Content)
	}

	resp, err := g.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(outputSystemPrompt, meta.Label, meta.Hint)},
			{Role: domain.RoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, domain.WrapOp("OutputGenerator.Generate", err)
	}

	content := strings.TrimSpace(resp.Message.Content)
	return &domain.GeneratedOutput{
		ID:          domain.NewRecordID(8),
		OutputType:  t,
		Title:       outputTitle(content, meta.Label),
		Content:     content,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// outputTitle pulls the markdown H1, falling back to the type label.
func outputTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
		if line != "" {
			break
		}
	}
	return fallback
}
