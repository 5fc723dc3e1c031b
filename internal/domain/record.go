package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// RecordKind identifies one of the persisted record collections.
type RecordKind string

const (
	KindCustomerRequest RecordKind = "customer_request"
	KindDayPlan         RecordKind = "day_plan"
	KindInsight         RecordKind = "strategic_insight"
	KindAgentProfile    RecordKind = "agent_profile"
)

// AllRecordKinds lists every kind the store persists, in file order.
var AllRecordKinds = []RecordKind{KindCustomerRequest, KindDayPlan, KindInsight, KindAgentProfile}

// RecordMeta is the bookkeeping every persisted record carries.
// Version increments on every save; Deleted is a soft-delete flag —
// records are never removed from disk.
type RecordMeta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
	Deleted   bool      `json:"deleted"`
}

// Record is implemented by every persisted record type.
type Record interface {
	RecordID() string
	Kind() RecordKind
	Meta() *RecordMeta
}

// NewRecordID returns a short random hex identifier (n hex chars).
// Customer requests use 8 chars; insights use "r" + 7 chars.
func NewRecordID(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process is in far worse trouble
		// than id generation; fall back to a timestamp-derived id.
		return hex.EncodeToString([]byte(time.Now().Format("150405.000")))[:n]
	}
	return hex.EncodeToString(buf)[:n]
}

// DeltaOp is the kind of mutation a RecordDelta applies.
type DeltaOp string

const (
	DeltaUpsert DeltaOp = "upsert"
	DeltaLink   DeltaOp = "link"
)

// RecordDelta is one mutation an agent proposes against the record store.
// Upsert deltas carry the record; link deltas carry the two sides of a
// request↔insight reference. Summary is the human-readable description
// included in the cycle response once the delta commits.
type RecordDelta struct {
	Op        DeltaOp
	Kind      RecordKind
	Record    Record
	RequestID string // link: customer request side
	InsightID string // link: insight side
	Summary   string
}

// RecordSnapshot is a deep copy of the store taken at dispatch time.
// Agents execute against this, never against live store state.
type RecordSnapshot struct {
	Requests []*CustomerRequest
	Plans    []*DayPlan
	Insights []*StrategicInsight
	Profiles []*AgentProfile
	TakenAt  time.Time
}

// OpenRequests returns the non-deleted, non-closed requests in the snapshot.
func (s *RecordSnapshot) OpenRequests() []*CustomerRequest {
	out := make([]*CustomerRequest, 0, len(s.Requests))
	for _, r := range s.Requests {
		if r.Deleted || r.Status == RequestStatusClosed {
			continue
		}
		out = append(out, r)
	}
	return out
}
