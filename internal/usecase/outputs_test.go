package usecase

import (
	"context"
	"strings"
	"testing"

	"adjutant/internal/domain"
)

func TestDetectOutputRequest(t *testing.T) {
	cases := []struct {
		message string
		want    domain.OutputType
		ok      bool
	}{
		{"generate a PRD from this discussion", domain.OutputPRD, true},
		{"create an architecture note for the sync engine", domain.OutputArchitecture, true},
		{"draft a decision log", domain.OutputDecisionLog, true},
		{"produce an event plan for the launch", domain.OutputEventPlan, true},
		{"write up the requirements", domain.OutputRequirements, true},
		{"generate a summary of where we landed", domain.OutputSummary, true},
		{"create a doc capturing this", domain.OutputCustom, true},
		{"what does everyone think about caching", "", false},
		{"log this: Acme wants SSO", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectOutputRequest(tc.message)
		if ok != tc.ok || got != tc.want {
			t.Errorf("DetectOutputRequest(%q) = (%q, %v), want (%q, %v)",
				tc.message, got, ok, tc.want, tc.ok)
		}
	}
}

func TestGenerateBuildsOutputFromTranscript(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"# Sync Engine PRD\n\n## Problem\nAgents overwrite each other."}}
	g := NewOutputGenerator(llm, testLogger())

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "we need a shared record store"},
		{Role: domain.RoleAssistant, Name: "challenger", Content: "what happens on concurrent writes?"},
	}
	out, err := g.Generate(context.Background(), domain.OutputPRD, history)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.OutputType != domain.OutputPRD {
		t.Errorf("OutputType = %q", out.OutputType)
	}
	if out.Title != "Sync Engine PRD" {
		t.Errorf("Title = %q, want H1 text", out.Title)
	}
	if out.ID == "" || out.GeneratedAt.IsZero() {
		t.Errorf("output missing id or timestamp: %+v", out)
	}

	// The transcript handed to the model carries speaker attribution.
	prompt := llm.calls[0].Messages[1].Content
	if !strings.Contains(prompt, "challenger:") {
		t.Errorf("transcript lacks agent attribution: %q", prompt)
	}
}

func TestGenerateWindowsLongTranscripts(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"# Summary"}}
	g := NewOutputGenerator(llm, testLogger())

	history := make([]domain.Message, 0, 80)
	for i := 0; i < 80; i++ {
		history = append(history, domain.Message{Role: domain.RoleUser, Content: "turn"})
	}
	if _, err := g.Generate(context.Background(), domain.OutputSummary, history); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	prompt := llm.calls[0].Messages[1].Content
	if got := strings.Count(prompt, "user: turn"); got != outputTranscriptWindow {
		t.Errorf("transcript turns = %d, want %d", got, outputTranscriptWindow)
	}
}

func TestGenerateRejectsUnknownTypeAndEmptyHistory(t *testing.T) {
	g := NewOutputGenerator(&scriptedLLM{}, testLogger())
	if _, err := g.Generate(context.Background(), "memo", []domain.Message{{Role: domain.RoleUser, Content: "x"}}); err == nil {
		t.Error("unknown type accepted")
	}
	if _, err := g.Generate(context.Background(), domain.OutputSummary, nil); err == nil {
		t.Error("empty history accepted")
	}
}

func TestOutputTitleFallback(t *testing.T) {
	if got := outputTitle("no heading here", "Summary"); got != "Summary" {
		t.Errorf("outputTitle = %q, want fallback", got)
	}
}
