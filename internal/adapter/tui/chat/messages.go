// Package chat implements the Bubble Tea terminal chat surface. It wraps
// the orchestrator handler in a domain.Channel and renders agent-labeled
// markdown replies with a live activity line driven by bus events.
package chat

import "adjutant/internal/domain"

// OutboundMsg wraps a reply injected from Channel.Send. Gen identifies the
// request generation so replies to cancelled requests are discarded.
type OutboundMsg struct {
	Message domain.OutboundMessage
	Gen     uint64
}

// HandlerDoneMsg signals that the handler goroutine finished.
type HandlerDoneMsg struct {
	Err error
	Gen uint64
}

// QuitMsg signals the program to exit.
type QuitMsg struct{}

// AgentActivityMsg reports a specialist starting or finishing, used for
// the status line while a cycle runs.
type AgentActivityMsg struct {
	Agent string
	Done  bool
	Fail  bool
}

// ToolActivityMsg reports a tool call starting or finishing.
type ToolActivityMsg struct {
	Tool string
	Done bool
}
