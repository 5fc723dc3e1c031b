package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"adjutant/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedLLM answers each Chat call from the respond function, or pops
// the next canned response. Calls are recorded for assertions.
type scriptedLLM struct {
	mu        sync.Mutex
	respond   func(req domain.ChatRequest) (string, error)
	responses []string
	calls     []domain.ChatRequest
}

func (s *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if s.respond != nil {
		content, err := s.respond(req)
		if err != nil {
			return nil, err
		}
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}, nil
	}

	var content string
	if len(s.responses) > 0 {
		content = s.responses[0]
		s.responses = s.responses[1:]
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
