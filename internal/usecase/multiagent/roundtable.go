package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"adjutant/internal/domain"
)

// RoundTable fans a set of agent calls out to parallel goroutines and
// collects their outputs in dispatch order. Every call gets its own
// timeout; a failed call is retried once before the slot is marked as a
// labeled failure. Failures never abort the table: the other agents'
// answers still come back.
type RoundTable struct {
	exec       domain.AgentExecutor
	bus        domain.EventBus
	timeout    time.Duration
	retryOnce  bool
	retryDelay time.Duration
	log        *slog.Logger
}

// RoundTableOptions tune execution. Zero values fall back to defaults.
type RoundTableOptions struct {
	Timeout    time.Duration // per-agent budget, default 90s
	RetryOnce  bool          // retry a failed call once after RetryDelay
	RetryDelay time.Duration // default 2s
}

// NewRoundTable builds a RoundTable over the given executor. bus may be
// nil when no one listens for agent lifecycle events.
func NewRoundTable(exec domain.AgentExecutor, bus domain.EventBus, opts RoundTableOptions, log *slog.Logger) *RoundTable {
	if log == nil {
		log = discardLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &RoundTable{
		exec:       exec,
		bus:        bus,
		timeout:    timeout,
		retryOnce:  opts.RetryOnce,
		retryDelay: delay,
		log:        log,
	}
}

// Run executes all calls in parallel and returns one output per call, in
// the same order as the calls slice.
func (rt *RoundTable) Run(ctx context.Context, calls []domain.AgentCall) []*domain.AgentOutput {
	outputs := make([]*domain.AgentOutput, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.AgentCall) {
			defer wg.Done()
			outputs[i] = rt.runOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return outputs
}

type agentEventPayload struct {
	Agent     string `json:"agent"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	Retried   bool   `json:"retried,omitempty"`
}

func (rt *RoundTable) runOne(ctx context.Context, call domain.AgentCall) *domain.AgentOutput {
	key := call.Descriptor.Key
	rt.publish(domain.EventAgentStarted, call.SessionID, agentEventPayload{Agent: key})

	start := time.Now()
	out, err := rt.attempt(ctx, call)
	retried := false
	if err != nil && rt.retryOnce && ctx.Err() == nil {
		rt.log.Warn("agent call failed, retrying once",
			"agent", key, "session", call.SessionID, "error", err)
		select {
		case <-time.After(rt.retryDelay):
			retried = true
			out, err = rt.attempt(ctx, call)
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		rt.log.Error("agent call failed",
			"agent", key, "session", call.SessionID, "retried", retried, "error", err)
		rt.publish(domain.EventAgentFailed, call.SessionID, agentEventPayload{
			Agent:     key,
			ElapsedMS: elapsed.Milliseconds(),
			Error:     err.Error(),
			Retried:   retried,
		})
		return &domain.AgentOutput{
			AgentKey: key,
			Label:    call.Descriptor.Label,
			Err:      fmt.Errorf("%w: %s: %w", domain.ErrAgentFailed, key, err),
			Elapsed:  elapsed,
		}
	}

	out.AgentKey = key
	if out.Label == "" {
		out.Label = call.Descriptor.Label
	}
	out.Elapsed = elapsed
	rt.publish(domain.EventAgentFinished, call.SessionID, agentEventPayload{
		Agent:     key,
		ElapsedMS: elapsed.Milliseconds(),
		Retried:   retried,
	})
	return out
}

// attempt runs one execution under the per-agent timeout.
func (rt *RoundTable) attempt(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	actx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	out, err := rt.exec.Execute(actx, call)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", domain.ErrTimeout, rt.timeout)
		}
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("executor returned no output for agent %q", call.Descriptor.Key)
	}
	return out, nil
}

func (rt *RoundTable) publish(eventType domain.EventType, sessionID string, payload agentEventPayload) {
	if rt.bus == nil {
		return
	}
	rt.bus.Publish(domain.NewEvent(eventType, sessionID, payload))
}
