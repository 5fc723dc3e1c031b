package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"adjutant/internal/domain"
)

// stubProvider answers with a fixed response or error.
type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: s.reply}}, nil
}

func (s *stubProvider) Name() string { return s.name }

func TestFailoverPrimarySucceeds(t *testing.T) {
	primary := &stubProvider{name: "primary", reply: "from primary"}
	fallback := &stubProvider{name: "backup", reply: "from backup"}
	f := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, newTestLogger())

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "from primary" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if fallback.calls != 0 {
		t.Error("fallback called although primary succeeded")
	}
}

func TestFailoverFallsThroughInOrder(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("down")}
	first := &stubProvider{name: "first", err: errors.New("also down")}
	second := &stubProvider{name: "second", reply: "rescued"}
	f := NewFailoverProvider(primary, []domain.LLMProvider{first, second}, newTestLogger())

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "rescued" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want each fallback tried once", first.calls, second.calls)
	}
}

func TestFailoverAggregatesAllErrors(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("primary boom")}
	fallback := &stubProvider{name: "backup", err: errors.New("backup boom")}
	f := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, newTestLogger())

	_, err := f.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("all providers failed yet Chat succeeded")
	}
	for _, want := range []string{"all providers failed", "primary: primary boom", "backup: backup boom"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestFailoverName(t *testing.T) {
	f := NewFailoverProvider(&stubProvider{name: "primary"}, nil, newTestLogger())
	if f.Name() != "primary+failover" {
		t.Errorf("Name = %q", f.Name())
	}
}
