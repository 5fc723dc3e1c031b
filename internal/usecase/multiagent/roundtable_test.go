package multiagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/usecase/eventbus"
)

// scriptedExecutor fails each agent a configured number of times before
// succeeding, with an optional per-agent delay.
type scriptedExecutor struct {
	mu    sync.Mutex
	fails map[string]int
	delay map[string]time.Duration
	calls map[string]int
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		fails: make(map[string]int),
		delay: make(map[string]time.Duration),
		calls: make(map[string]int),
	}
}

func (e *scriptedExecutor) Execute(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	key := call.Descriptor.Key
	e.mu.Lock()
	e.calls[key]++
	n := e.calls[key]
	delay := e.delay[key]
	failures := e.fails[key]
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= failures {
		return nil, fmt.Errorf("scripted failure %d for %s", n, key)
	}
	return &domain.AgentOutput{Text: "answer from " + key}, nil
}

func (e *scriptedExecutor) callCount(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[key]
}

func callFor(key string) domain.AgentCall {
	return domain.AgentCall{
		Descriptor: domain.AgentDescriptor{Key: key, Label: key},
		Message:    "test message",
		SessionID:  "s-test",
	}
}

func TestRunPreservesCallOrder(t *testing.T) {
	exec := newScriptedExecutor()
	exec.delay["alpha"] = 60 * time.Millisecond
	exec.delay["beta"] = 30 * time.Millisecond
	// gamma finishes first, alpha last; output order must not change.

	rt := NewRoundTable(exec, nil, RoundTableOptions{Timeout: time.Second}, testLogger())
	outputs := rt.Run(context.Background(), []domain.AgentCall{
		callFor("alpha"), callFor("beta"), callFor("gamma"),
	})

	want := []string{"alpha", "beta", "gamma"}
	if len(outputs) != len(want) {
		t.Fatalf("got %d outputs, want %d", len(outputs), len(want))
	}
	for i, out := range outputs {
		if out.AgentKey != want[i] {
			t.Errorf("outputs[%d] = %q, want %q", i, out.AgentKey, want[i])
		}
		if out.Failed() {
			t.Errorf("outputs[%d] failed: %v", i, out.Err)
		}
		if out.Text != "answer from "+want[i] {
			t.Errorf("outputs[%d] text = %q", i, out.Text)
		}
	}
}

func TestRunRetriesOnceAfterFailure(t *testing.T) {
	exec := newScriptedExecutor()
	exec.fails["flaky"] = 1

	rt := NewRoundTable(exec, nil, RoundTableOptions{
		Timeout:    time.Second,
		RetryOnce:  true,
		RetryDelay: 5 * time.Millisecond,
	}, testLogger())
	outputs := rt.Run(context.Background(), []domain.AgentCall{callFor("flaky")})

	if outputs[0].Failed() {
		t.Fatalf("expected retry to succeed, got %v", outputs[0].Err)
	}
	if got := exec.callCount("flaky"); got != 2 {
		t.Errorf("call count = %d, want 2", got)
	}
}

func TestRunMarksSlotFailedAfterRetry(t *testing.T) {
	exec := newScriptedExecutor()
	exec.fails["broken"] = 2

	rt := NewRoundTable(exec, nil, RoundTableOptions{
		Timeout:    time.Second,
		RetryOnce:  true,
		RetryDelay: 5 * time.Millisecond,
	}, testLogger())
	outputs := rt.Run(context.Background(), []domain.AgentCall{callFor("broken")})

	out := outputs[0]
	if !out.Failed() {
		t.Fatal("expected a failure marker")
	}
	if !errors.Is(out.Err, domain.ErrAgentFailed) {
		t.Errorf("Err = %v, want ErrAgentFailed", out.Err)
	}
	if out.AgentKey != "broken" || out.Label != "broken" {
		t.Errorf("failure marker keeps identity, got key=%q label=%q", out.AgentKey, out.Label)
	}
	if got := exec.callCount("broken"); got != 2 {
		t.Errorf("call count = %d, want exactly 2 (one retry)", got)
	}
}

func TestRunWithoutRetryFailsImmediately(t *testing.T) {
	exec := newScriptedExecutor()
	exec.fails["broken"] = 1

	rt := NewRoundTable(exec, nil, RoundTableOptions{Timeout: time.Second}, testLogger())
	outputs := rt.Run(context.Background(), []domain.AgentCall{callFor("broken")})

	if !outputs[0].Failed() {
		t.Fatal("expected a failure marker")
	}
	if got := exec.callCount("broken"); got != 1 {
		t.Errorf("call count = %d, want 1 (retry disabled)", got)
	}
}

func TestRunTimeoutBecomesLabeledFailure(t *testing.T) {
	exec := newScriptedExecutor()
	exec.delay["slow"] = 500 * time.Millisecond

	rt := NewRoundTable(exec, nil, RoundTableOptions{Timeout: 20 * time.Millisecond}, testLogger())
	outputs := rt.Run(context.Background(), []domain.AgentCall{callFor("slow"), callFor("fast")})

	if !outputs[0].Failed() {
		t.Fatal("slow agent should have timed out")
	}
	if !errors.Is(outputs[0].Err, domain.ErrTimeout) {
		t.Errorf("Err = %v, want ErrTimeout", outputs[0].Err)
	}
	if outputs[1].Failed() {
		t.Errorf("fast agent must be unaffected by the slow one: %v", outputs[1].Err)
	}
}

func TestRunOneFailureDoesNotAbortOthers(t *testing.T) {
	exec := newScriptedExecutor()
	exec.fails["broken"] = 5

	rt := NewRoundTable(exec, nil, RoundTableOptions{Timeout: time.Second}, testLogger())
	outputs := rt.Run(context.Background(), []domain.AgentCall{
		callFor("ok1"), callFor("broken"), callFor("ok2"),
	})

	if outputs[0].Failed() || outputs[2].Failed() {
		t.Error("healthy agents must still answer")
	}
	if !outputs[1].Failed() {
		t.Error("broken agent must be a failure marker, not dropped")
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.New(testLogger())
	var started, finished, failed atomic.Int64
	bus.Subscribe(domain.EventAgentStarted, func(ctx context.Context, evt domain.Event) {
		started.Add(1)
	})
	bus.Subscribe(domain.EventAgentFinished, func(ctx context.Context, evt domain.Event) {
		finished.Add(1)
	})
	bus.Subscribe(domain.EventAgentFailed, func(ctx context.Context, evt domain.Event) {
		failed.Add(1)
	})

	exec := newScriptedExecutor()
	exec.fails["broken"] = 5
	rt := NewRoundTable(exec, bus, RoundTableOptions{Timeout: time.Second}, testLogger())
	rt.Run(context.Background(), []domain.AgentCall{callFor("ok"), callFor("broken")})
	bus.Close()

	if started.Load() != 2 {
		t.Errorf("started events = %d, want 2", started.Load())
	}
	if finished.Load() != 1 {
		t.Errorf("finished events = %d, want 1", finished.Load())
	}
	if failed.Load() != 1 {
		t.Errorf("failed events = %d, want 1", failed.Load())
	}
}

func TestRunEmptyCalls(t *testing.T) {
	rt := NewRoundTable(newScriptedExecutor(), nil, RoundTableOptions{}, testLogger())
	outputs := rt.Run(context.Background(), nil)
	if len(outputs) != 0 {
		t.Errorf("got %d outputs for no calls", len(outputs))
	}
}
