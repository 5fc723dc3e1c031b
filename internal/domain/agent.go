package domain

import (
	"context"
	"slices"
	"time"
)

// AgentTier distinguishes the built-in record writers from persona agents.
type AgentTier string

const (
	TierCore    AgentTier = "core"    // intake, planner, analyst — the record writers
	TierPersona AgentTier = "persona" // challenger, writer, researcher, facilitator
	TierCustom  AgentTier = "custom"  // user-defined profiles
)

// AgentDescriptor declares one registered agent: identity, persona, and
// its read/write authorization over the record store. Write authorization
// is the integrity boundary — exactly one registered agent writes
// CustomerRequest, one writes DayPlan, one writes StrategicInsight.
type AgentDescriptor struct {
	Key       string          `json:"key" yaml:"key"`
	Label     string          `json:"label" yaml:"label"`
	Emoji     string          `json:"emoji,omitempty" yaml:"emoji,omitempty"`
	Specialty string          `json:"specialty,omitempty" yaml:"specialty,omitempty"`
	Persona   string          `json:"persona,omitempty" yaml:"persona,omitempty"`
	Reads     []RecordKind    `json:"reads,omitempty" yaml:"reads,omitempty"`
	Writes    []RecordKind    `json:"writes,omitempty" yaml:"writes,omitempty"`
	Tools     []string        `json:"tools,omitempty" yaml:"tools,omitempty"`
	Tier      AgentTier       `json:"tier" yaml:"tier"`
	Category  ProfileCategory `json:"category,omitempty" yaml:"category,omitempty"`
}

// CanWrite reports whether this agent is authorized to write the kind.
func (d AgentDescriptor) CanWrite(kind RecordKind) bool {
	return slices.Contains(d.Writes, kind)
}

// DispatchMode says how the selected agents run for one message.
type DispatchMode string

const (
	ModeFocused    DispatchMode = "focused"     // exactly one agent
	ModeMini       DispatchMode = "mini"        // explicit small set, mention order
	ModeRoundTable DispatchMode = "round_table" // all active agents
	ModeDirect     DispatchMode = "direct"      // answered from the record store, no delegation
	ModeClarify    DispatchMode = "clarify"     // ambiguous — ask the caller
)

// DispatchDecision is the intent router's verdict for one message.
// AgentKeys is in dispatch order (mention order for mini round-tables).
// Rule names the decision-table row that fired. Notice carries user-facing
// text for clarify decisions and inactive-mention warnings.
type DispatchDecision struct {
	Mode      DispatchMode
	AgentKeys []string
	Rule      string
	Notice    string
}

// AgentCall is the immutable input for one agent execution. Snapshot and
// History are copies taken at dispatch time; executors must not see live
// store state.
type AgentCall struct {
	Descriptor AgentDescriptor
	Message    string
	History    []Message
	Roster     []AgentDescriptor // the other active agents, for the team reminder
	Snapshot   *RecordSnapshot
	Documents  []SessionDocument // attached docs for grounding
	Concise    bool              // round-table brevity constraint
	SessionID  string
}

// AgentOutput is one agent's contribution to a cycle. A non-nil Err marks
// the slot as failed; merged responses keep failed slots as labeled
// failure markers rather than dropping them.
type AgentOutput struct {
	AgentKey string
	Label    string
	Text     string
	Deltas   []RecordDelta
	Err      error
	Elapsed  time.Duration
}

// Failed reports whether this slot is a failure marker.
func (o *AgentOutput) Failed() bool { return o.Err != nil }

// AgentExecutor runs one agent against an immutable call. Implementations
// wrap the completion capability; the orchestrator treats them as black
// boxes that return prose plus optional record deltas.
type AgentExecutor interface {
	Execute(ctx context.Context, call AgentCall) (*AgentOutput, error)
}

// IntentRouter maps one inbound message plus session state to a dispatch
// decision. Implementations must never guess on ambiguity: the clarify
// mode exists so ambiguous intent is pushed back to the caller.
type IntentRouter interface {
	Route(ctx context.Context, in RouteInput) (*DispatchDecision, error)
}

// RouteInput is everything the router may consult for one decision.
type RouteInput struct {
	Message      string
	ActiveAgents []string // active agent keys in roster order
	HasDocuments bool     // session has attached documents
	SessionID    string
}
