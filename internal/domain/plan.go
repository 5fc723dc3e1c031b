package domain

import (
	"fmt"
	"slices"
	"time"
)

// FocusSource tags where a focus item came from.
type FocusSource string

const (
	FocusFromRequest  FocusSource = "customer_request"
	FocusFromCalendar FocusSource = "calendar"
	FocusFromEmail    FocusSource = "email"
	FocusFromTeams    FocusSource = "teams"
	FocusFromInsight  FocusSource = "insight"
	FocusFromBacklog  FocusSource = "backlog"
)

var validFocusSources = []FocusSource{FocusFromRequest, FocusFromCalendar, FocusFromEmail, FocusFromTeams, FocusFromInsight, FocusFromBacklog}

// FocusItem is one ranked entry in a day plan. SourceRef's meaning depends
// on SourceType: a request id, an insight id, or a free-form reference.
// LinkedRequestIDs is populated only for customer_request items. Done is
// settable only by the end user, never by an agent.
type FocusItem struct {
	Rank             int         `json:"rank"`
	Title            string      `json:"title"`
	What             string      `json:"what,omitempty"`
	Why              string      `json:"why,omitempty"`
	SourceType       FocusSource `json:"source_type"`
	SourceRef        string      `json:"source_ref,omitempty"`
	LinkedRequestIDs []string    `json:"linked_request_ids,omitempty"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	Done             bool        `json:"done"`
}

// Meeting is one calendar entry carried on a plan.
type Meeting struct {
	Title           string `json:"title"`
	Start           string `json:"start,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// DayPlan is the ranked focus list for one calendar date. One plan per
// date is the working rule; when regeneration produces a second plan for
// the same date, reads resolve to the latest by GeneratedAt.
type DayPlan struct {
	RecordMeta

	Date           string      `json:"date"` // YYYY-MM-DD
	GeneratedAt    time.Time   `json:"generated_at"`
	BriefingSource string      `json:"briefing_source"`
	FocusItems     []FocusItem `json:"focus_items"`
	ContextSummary string      `json:"context_summary,omitempty"`
	Meetings       []Meeting   `json:"meetings,omitempty"`
}

// NewDayPlan creates an empty plan for the given date.
func NewDayPlan(date string) *DayPlan {
	now := time.Now().UTC()
	return &DayPlan{
		RecordMeta: RecordMeta{
			ID:        NewRecordID(8),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Date:           date,
		GeneratedAt:    now,
		BriefingSource: "pasted",
	}
}

func (p *DayPlan) RecordID() string  { return p.ID }
func (p *DayPlan) Kind() RecordKind  { return KindDayPlan }
func (p *DayPlan) Meta() *RecordMeta { return &p.RecordMeta }

// Validate checks rank uniqueness (1..5), source-type enums, and that
// linked request ids appear only on customer_request items.
func (p *DayPlan) Validate() error {
	if p.ID == "" {
		return NewSubSystemError("records", "DayPlan.Validate", ErrInvalidInput, "empty id")
	}
	if _, err := time.Parse("2006-01-02", p.Date); err != nil {
		return NewSubSystemError("records", "DayPlan.Validate", ErrInvalidInput,
			fmt.Sprintf("date %q is not YYYY-MM-DD", p.Date))
	}
	if len(p.FocusItems) > 5 {
		return NewSubSystemError("records", "DayPlan.Validate", ErrInvalidInput,
			fmt.Sprintf("%d focus items, maximum is 5", len(p.FocusItems)))
	}
	seen := map[int]bool{}
	for i := range p.FocusItems {
		item := &p.FocusItems[i]
		if item.Rank < 1 || item.Rank > 5 {
			return NewSubSystemError("records", "DayPlan.Validate", ErrInvalidInput,
				fmt.Sprintf("focus item %q rank %d outside 1..5", item.Title, item.Rank))
		}
		if seen[item.Rank] {
			return NewSubSystemError("records", "DayPlan.Validate", ErrInvalidInput,
				fmt.Sprintf("duplicate rank %d", item.Rank))
		}
		seen[item.Rank] = true
		if !slices.Contains(validFocusSources, item.SourceType) {
			return NewSubSystemError("records", "DayPlan.Validate", ErrInvalidInput,
				fmt.Sprintf("source_type %q not in closed set", item.SourceType))
		}
		if len(item.LinkedRequestIDs) > 0 && item.SourceType != FocusFromRequest {
			return NewSubSystemError("records", "DayPlan.Validate", ErrInvariant,
				fmt.Sprintf("focus item %q links requests but source_type is %s", item.Title, item.SourceType))
		}
	}
	return nil
}

// LinkedRequestIDs returns the deduplicated request ids across all focus
// items, in first-appearance order.
func (p *DayPlan) LinkedRequestIDs() []string {
	var out []string
	for _, item := range p.FocusItems {
		for _, id := range item.LinkedRequestIDs {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// PromotedInsightIDs returns insight ids referenced by insight-sourced
// focus items, deduplicated in order.
func (p *DayPlan) PromotedInsightIDs() []string {
	var out []string
	for _, item := range p.FocusItems {
		if item.SourceType != FocusFromInsight || item.SourceRef == "" {
			continue
		}
		if !slices.Contains(out, item.SourceRef) {
			out = append(out, item.SourceRef)
		}
	}
	return out
}

// ItemAtRank returns the focus item with the given rank, or nil.
func (p *DayPlan) ItemAtRank(rank int) *FocusItem {
	for i := range p.FocusItems {
		if p.FocusItems[i].Rank == rank {
			return &p.FocusItems[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *DayPlan) Clone() *DayPlan {
	cp := *p
	cp.FocusItems = make([]FocusItem, len(p.FocusItems))
	for i, item := range p.FocusItems {
		item.LinkedRequestIDs = slices.Clone(item.LinkedRequestIDs)
		cp.FocusItems[i] = item
	}
	cp.Meetings = slices.Clone(p.Meetings)
	return &cp
}
