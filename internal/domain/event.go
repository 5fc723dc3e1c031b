package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Cycle lifecycle events, in state-machine order.
	EventCycleReceived  EventType = "cycle.received"
	EventCycleRouted    EventType = "cycle.routed"
	EventCyclePersisted EventType = "cycle.persisted"
	EventCycleResponded EventType = "cycle.responded"

	// Per-agent execution events within a cycle.
	EventAgentStarted  EventType = "agent.started"
	EventAgentFinished EventType = "agent.finished"
	EventAgentFailed   EventType = "agent.failed"

	// Integrity events. An unauthorized delta is an integrity violation,
	// reported distinctly from agent failure.
	EventDeltaRejected EventType = "delta.rejected"

	// Record store events.
	EventRecordSaved    EventType = "record.saved"
	EventRecordDeleted  EventType = "record.deleted"
	EventRecordsLinked  EventType = "records.linked"
	EventPlanApplied    EventType = "plan.applied"
	EventInsightPromoted EventType = "insight.promoted"

	// Session lifecycle.
	EventSessionCreated EventType = "session.created"
	EventSessionDeleted EventType = "session.deleted"
	EventDecisionLogged EventType = "decision.logged"
	EventOutputGenerated EventType = "output.generated"

	// Tool and LLM call events.
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventLLMCallStarted    EventType = "llm.call.started"
	EventLLMCallCompleted  EventType = "llm.call.completed"

	// Scheduled job events.
	EventSweepStaleFired    EventType = "sweep.stale.fired"
	EventMorningReminder    EventType = "reminder.morning"

	// Plugin lifecycle.
	EventPluginLoaded   EventType = "plugin.loaded"
	EventPluginUnloaded EventType = "plugin.unloaded"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler processes a published event. Handlers run on the bus's
// dispatch goroutines and must not block indefinitely.
type EventHandler func(ctx context.Context, evt Event)

// EventBus is the pub/sub fabric connecting the orchestrator to channels,
// the gateway, and scheduled jobs.
type EventBus interface {
	// Publish delivers the event to all matching subscribers. Non-blocking.
	Publish(evt Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(t EventType, h EventHandler) (unsubscribe func())
	// SubscribeAll registers a handler for every event type.
	SubscribeAll(h EventHandler) (unsubscribe func())
	// Close shuts down the bus and waits for in-flight handlers.
	Close()
}

// NewEvent builds an event with the payload marshaled to JSON.
// Marshal failures degrade to an empty payload rather than dropping the event.
func NewEvent(t EventType, sessionID string, payload any) Event {
	evt := Event{Type: t, Timestamp: time.Now().UTC(), SessionID: sessionID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			evt.Payload = data
		}
	}
	return evt
}
