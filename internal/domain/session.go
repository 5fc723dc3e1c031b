package domain

import "time"

// SessionMode scopes a working session.
type SessionMode string

const (
	SessionModeWork SessionMode = "work"
	SessionModeLife SessionMode = "life"
)

// DiscussionMode is the session's standing dispatch preference.
type DiscussionMode string

const (
	DiscussionOpen       DiscussionMode = "open"        // router decides per message
	DiscussionRoundTable DiscussionMode = "round_table" // everything goes to all active agents
	DiscussionFocused    DiscussionMode = "focused"     // everything goes to one pinned agent
)

// SessionDocument is an attached plain-text document, used for grounding
// document Q&A. Extraction from CSV/PDF/docx happens before the engine.
type SessionDocument struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// SessionDecision is one decision captured during a session, detected in
// agent output or logged explicitly.
type SessionDecision struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	Context string    `json:"context,omitempty"`
	MadeAt  time.Time `json:"made_at"`
}

// OutputType classifies a generated document.
type OutputType string

const (
	OutputPRD          OutputType = "prd"
	OutputArchitecture OutputType = "architecture"
	OutputDecisionLog  OutputType = "decision_log"
	OutputEventPlan    OutputType = "event_plan"
	OutputRequirements OutputType = "requirements"
	OutputSummary      OutputType = "summary"
	OutputCustom       OutputType = "custom"
)

// OutputTypeMeta carries the display label and drafting hint for each
// generated output type.
type OutputTypeMeta struct {
	Label string
	Hint  string
}

// OutputTypes maps each output type to its metadata.
var OutputTypes = map[OutputType]OutputTypeMeta{
	OutputPRD:          {Label: "PRD", Hint: "a product requirements document with problem, goals, requirements, and open questions"},
	OutputArchitecture: {Label: "Architecture Note", Hint: "an architecture overview with components, data flow, and trade-offs"},
	OutputDecisionLog:  {Label: "Decision Log", Hint: "a numbered log of decisions with context and consequences"},
	OutputEventPlan:    {Label: "Event Plan", Hint: "an event plan with timeline, owners, and logistics"},
	OutputRequirements: {Label: "Requirements", Hint: "a structured list of functional and non-functional requirements"},
	OutputSummary:      {Label: "Summary", Hint: "a concise summary of the discussion with key points and next steps"},
	OutputCustom:       {Label: "Document", Hint: "a structured document capturing the discussion"},
}

// GeneratedOutput is one structured document produced from a session
// transcript and persisted on the session.
type GeneratedOutput struct {
	ID          string     `json:"id"`
	OutputType  OutputType `json:"output_type"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	GeneratedAt time.Time  `json:"generated_at"`
}
