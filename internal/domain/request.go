package domain

import (
	"fmt"
	"slices"
	"time"
)

// RequestSource is the channel a customer request arrived through.
type RequestSource string

const (
	SourceChat            RequestSource = "chat"
	SourceCSV             RequestSource = "csv"
	SourcePDF             RequestSource = "pdf"
	SourceDocx            RequestSource = "docx"
	SourceCopilotBriefing RequestSource = "copilot_briefing"
)

// RequestClassification is the closed set of demand categories.
type RequestClassification string

const (
	ClassFeatureRequest RequestClassification = "feature_request"
	ClassBugReport      RequestClassification = "bug_report"
	ClassIntegration    RequestClassification = "integration"
	ClassSupport        RequestClassification = "support"
	ClassFeedback       RequestClassification = "feedback"
)

// RequestPriority runs P0 (most urgent) to P3.
type RequestPriority string

const (
	PriorityP0 RequestPriority = "P0"
	PriorityP1 RequestPriority = "P1"
	PriorityP2 RequestPriority = "P2"
	PriorityP3 RequestPriority = "P3"
)

// RequestStatus is the request lifecycle state.
type RequestStatus string

const (
	RequestStatusNew      RequestStatus = "new"
	RequestStatusTriaged  RequestStatus = "triaged"
	RequestStatusInReview RequestStatus = "in_review"
	RequestStatusLinked   RequestStatus = "linked"
	RequestStatusClosed   RequestStatus = "closed"
)

var (
	validClassifications = []RequestClassification{ClassFeatureRequest, ClassBugReport, ClassIntegration, ClassSupport, ClassFeedback}
	validPriorities      = []RequestPriority{PriorityP0, PriorityP1, PriorityP2, PriorityP3}
	validStatuses        = []RequestStatus{RequestStatusNew, RequestStatusTriaged, RequestStatusInReview, RequestStatusLinked, RequestStatusClosed}
)

// EditRecord is one append-only entry in a request's edit history.
type EditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
}

// CustomerRequest is a single unit of inbound demand.
type CustomerRequest struct {
	RecordMeta

	Description             string                `json:"description"`
	RawInput                string                `json:"raw_input,omitempty"`
	Source                  RequestSource         `json:"source"`
	SourceRef               string                `json:"source_ref,omitempty"`
	Classification          RequestClassification `json:"classification"`
	ClassificationRationale string                `json:"classification_rationale,omitempty"`
	Priority                RequestPriority       `json:"priority"`
	PriorityRationale       string                `json:"priority_rationale,omitempty"`
	Status                  RequestStatus         `json:"status"`
	Tags                    []string              `json:"tags,omitempty"`

	// Feedback-loop state. SurfaceCount only grows, and only when a day
	// plan referencing this request is applied. SurfacedPlanIDs records
	// which plans have already been credited so that replaying a plan
	// save never double-counts.
	LastSurfacedAt  *time.Time `json:"last_surfaced_at,omitempty"`
	SurfaceCount    int        `json:"surface_count"`
	SurfacedPlanIDs []string   `json:"surfaced_plan_ids,omitempty"`

	LinkedInsightIDs []string     `json:"linked_insight_ids,omitempty"`
	EditHistory      []EditRecord `json:"edit_history,omitempty"`
}

// NewCustomerRequest creates a request with a fresh id and "new" status.
func NewCustomerRequest(description, rawInput string, source RequestSource) *CustomerRequest {
	now := time.Now().UTC()
	return &CustomerRequest{
		RecordMeta: RecordMeta{
			ID:        NewRecordID(8),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Description:    description,
		RawInput:       rawInput,
		Source:         source,
		Classification: ClassFeatureRequest,
		Priority:       PriorityP2,
		Status:         RequestStatusNew,
	}
}

func (r *CustomerRequest) RecordID() string  { return r.ID }
func (r *CustomerRequest) Kind() RecordKind  { return KindCustomerRequest }
func (r *CustomerRequest) Meta() *RecordMeta { return &r.RecordMeta }

// Validate checks the enum fields and the monotone counters.
func (r *CustomerRequest) Validate() error {
	if r.ID == "" {
		return NewSubSystemError("records", "CustomerRequest.Validate", ErrInvalidInput, "empty id")
	}
	if !slices.Contains(validClassifications, r.Classification) {
		return NewSubSystemError("records", "CustomerRequest.Validate", ErrInvalidInput,
			fmt.Sprintf("classification %q not in closed set", r.Classification))
	}
	if !slices.Contains(validPriorities, r.Priority) {
		return NewSubSystemError("records", "CustomerRequest.Validate", ErrInvalidInput,
			fmt.Sprintf("priority %q not in closed set", r.Priority))
	}
	if !slices.Contains(validStatuses, r.Status) {
		return NewSubSystemError("records", "CustomerRequest.Validate", ErrInvalidInput,
			fmt.Sprintf("status %q not in closed set", r.Status))
	}
	if r.SurfaceCount < 0 {
		return NewSubSystemError("records", "CustomerRequest.Validate", ErrInvariant, "negative surface_count")
	}
	return nil
}

// MarkSurfaced credits this request for appearing in plan planID at the
// plan's generation time. Idempotent per plan: re-applying the same plan
// id is a no-op. Reports whether the counter changed.
func (r *CustomerRequest) MarkSurfaced(planID string, at time.Time) bool {
	if slices.Contains(r.SurfacedPlanIDs, planID) {
		return false
	}
	r.SurfacedPlanIDs = append(r.SurfacedPlanIDs, planID)
	r.SurfaceCount++
	t := at
	r.LastSurfacedAt = &t
	return true
}

// UpdateField sets a classification-level field and appends the change to
// the edit history. Unknown fields are rejected.
func (r *CustomerRequest) UpdateField(field, newValue string, at time.Time) error {
	var old string
	switch field {
	case "description":
		old, r.Description = r.Description, newValue
	case "classification":
		old = string(r.Classification)
		r.Classification = RequestClassification(newValue)
	case "priority":
		old = string(r.Priority)
		r.Priority = RequestPriority(newValue)
	case "status":
		old = string(r.Status)
		r.Status = RequestStatus(newValue)
	default:
		return NewSubSystemError("records", "CustomerRequest.UpdateField", ErrInvalidInput,
			fmt.Sprintf("field %q is not editable", field))
	}
	if err := r.Validate(); err != nil {
		// Roll back so a rejected edit leaves the record untouched.
		switch field {
		case "description":
			r.Description = old
		case "classification":
			r.Classification = RequestClassification(old)
		case "priority":
			r.Priority = RequestPriority(old)
		case "status":
			r.Status = RequestStatus(old)
		}
		return err
	}
	r.EditHistory = append(r.EditHistory, EditRecord{
		Timestamp: at,
		Field:     field,
		OldValue:  old,
		NewValue:  newValue,
	})
	return nil
}

// LinkInsight records the insight reference on this side. Reports whether
// the list changed. The store's Link keeps the other side in sync.
func (r *CustomerRequest) LinkInsight(insightID string) bool {
	if slices.Contains(r.LinkedInsightIDs, insightID) {
		return false
	}
	r.LinkedInsightIDs = append(r.LinkedInsightIDs, insightID)
	return true
}

// Clone returns a deep copy.
func (r *CustomerRequest) Clone() *CustomerRequest {
	cp := *r
	cp.Tags = slices.Clone(r.Tags)
	cp.SurfacedPlanIDs = slices.Clone(r.SurfacedPlanIDs)
	cp.LinkedInsightIDs = slices.Clone(r.LinkedInsightIDs)
	cp.EditHistory = slices.Clone(r.EditHistory)
	if r.LastSurfacedAt != nil {
		t := *r.LastSurfacedAt
		cp.LastSurfacedAt = &t
	}
	return &cp
}
