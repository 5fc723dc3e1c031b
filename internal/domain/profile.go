package domain

import (
	"slices"
	"time"
)

// ProfileCategory scopes an agent profile to working context.
type ProfileCategory string

const (
	CategoryWork ProfileCategory = "work"
	CategoryLife ProfileCategory = "life"
	CategoryBoth ProfileCategory = "both"
)

// AgentProfile is a persisted persona definition. Built-in persona agents
// (challenger, writer, researcher, facilitator) are seeded as default
// profiles; users create additional custom profiles. SkillNames is the
// tool allowlist the conversational runner scopes this agent to.
type AgentProfile struct {
	RecordMeta

	Key          string          `json:"key"`
	Label        string          `json:"label"`
	Emoji        string          `json:"emoji,omitempty"`
	Description  string          `json:"description,omitempty"`
	SystemPrompt string          `json:"system_prompt"`
	Category     ProfileCategory `json:"category"`
	IsDefault    bool            `json:"is_default"`
	SkillNames   []string        `json:"skill_names,omitempty"`
}

// NewAgentProfile creates a custom profile with a fresh id.
func NewAgentProfile(key, label, systemPrompt string) *AgentProfile {
	now := time.Now().UTC()
	return &AgentProfile{
		RecordMeta: RecordMeta{
			ID:        NewRecordID(8),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Key:          key,
		Label:        label,
		SystemPrompt: systemPrompt,
		Category:     CategoryBoth,
	}
}

func (p *AgentProfile) RecordID() string  { return p.ID }
func (p *AgentProfile) Kind() RecordKind  { return KindAgentProfile }
func (p *AgentProfile) Meta() *RecordMeta { return &p.RecordMeta }

// Validate checks key and category.
func (p *AgentProfile) Validate() error {
	if p.ID == "" || p.Key == "" {
		return NewSubSystemError("records", "AgentProfile.Validate", ErrInvalidInput, "empty id or key")
	}
	switch p.Category {
	case CategoryWork, CategoryLife, CategoryBoth:
	default:
		return NewSubSystemError("records", "AgentProfile.Validate", ErrInvalidInput,
			"category must be work, life, or both")
	}
	return nil
}

// Clone returns a deep copy.
func (p *AgentProfile) Clone() *AgentProfile {
	cp := *p
	cp.SkillNames = slices.Clone(p.SkillNames)
	return &cp
}
