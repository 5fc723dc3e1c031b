package domain

import (
	"context"
	"time"
)

// ArchiveEntry is one searchable line in the long-term activity archive:
// conversation turns, committed deltas, detected decisions. The archive is
// recall material for tools and direct queries, not authoritative state.
type ArchiveEntry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"` // "message", "delta", "decision"
	AgentKey  string    `json:"agent_key,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive stores and recalls activity entries.
type Archive interface {
	// Append stores one entry. Returns the assigned id.
	Append(ctx context.Context, entry ArchiveEntry) (int64, error)
	// Search returns entries matching all keywords, newest first, capped at limit.
	Search(ctx context.Context, keywords []string, limit int) ([]ArchiveEntry, error)
	// Recent returns the newest entries for a session, newest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]ArchiveEntry, error)
	// Close releases the underlying store.
	Close() error
}
