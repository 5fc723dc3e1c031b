package domain

import (
	"fmt"
	"slices"
	"time"
)

// InsightType is one of the four analytical categories.
type InsightType string

const (
	InsightTrend    InsightType = "trend"
	InsightGap      InsightType = "gap"
	InsightRisk     InsightType = "risk"
	InsightDecision InsightType = "decision"
)

var validInsightTypes = []InsightType{InsightTrend, InsightGap, InsightRisk, InsightDecision}

// InsightConfidence grades the evidence behind an insight.
// High requires 3+ corroborating requests or a P0 with an explicit urgency
// signal; medium is 2 related requests or inferred urgency; low is a single
// request or a speculative pattern.
type InsightConfidence string

const (
	ConfidenceHigh   InsightConfidence = "high"
	ConfidenceMedium InsightConfidence = "medium"
	ConfidenceLow    InsightConfidence = "low"
)

var validConfidences = []InsightConfidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow}

// StrategicInsight is an analytical record derived from the request corpus.
// Content is immutable after creation; only InDayPlan and the linked
// request list change, and InDayPlan never reverts once set.
type StrategicInsight struct {
	RecordMeta

	InsightType       InsightType       `json:"insight_type"`
	Title             string            `json:"title"`
	What              string            `json:"what,omitempty"`
	Why               string            `json:"why,omitempty"`
	RecommendedAction string            `json:"recommended_action,omitempty"`
	Confidence        InsightConfidence `json:"confidence"`
	Period            string            `json:"period"`
	LinkedRequestIDs  []string          `json:"linked_request_ids,omitempty"`
	InDayPlan         bool              `json:"in_day_plan"`
}

// NewStrategicInsight creates an insight with the "r"-prefixed id shape.
func NewStrategicInsight(t InsightType, title string) *StrategicInsight {
	now := time.Now().UTC()
	return &StrategicInsight{
		RecordMeta: RecordMeta{
			ID:        "r" + NewRecordID(7),
			CreatedAt: now,
			UpdatedAt: now,
		},
		InsightType: t,
		Title:       title,
		Confidence:  ConfidenceLow,
		Period:      "last-30-days",
	}
}

func (s *StrategicInsight) RecordID() string  { return s.ID }
func (s *StrategicInsight) Kind() RecordKind  { return KindInsight }
func (s *StrategicInsight) Meta() *RecordMeta { return &s.RecordMeta }

// Validate checks the enum fields.
func (s *StrategicInsight) Validate() error {
	if s.ID == "" {
		return NewSubSystemError("records", "StrategicInsight.Validate", ErrInvalidInput, "empty id")
	}
	if !slices.Contains(validInsightTypes, s.InsightType) {
		return NewSubSystemError("records", "StrategicInsight.Validate", ErrInvalidInput,
			fmt.Sprintf("insight_type %q not in closed set", s.InsightType))
	}
	if !slices.Contains(validConfidences, s.Confidence) {
		return NewSubSystemError("records", "StrategicInsight.Validate", ErrInvalidInput,
			fmt.Sprintf("confidence %q not in closed set", s.Confidence))
	}
	return nil
}

// Promote flips InDayPlan. It never flips back; re-promotion is a no-op.
// Reports whether the flag changed.
func (s *StrategicInsight) Promote() bool {
	if s.InDayPlan {
		return false
	}
	s.InDayPlan = true
	return true
}

// LinkRequest records the request reference on this side. Reports whether
// the list changed.
func (s *StrategicInsight) LinkRequest(requestID string) bool {
	if slices.Contains(s.LinkedRequestIDs, requestID) {
		return false
	}
	s.LinkedRequestIDs = append(s.LinkedRequestIDs, requestID)
	return true
}

// Clone returns a deep copy.
func (s *StrategicInsight) Clone() *StrategicInsight {
	cp := *s
	cp.LinkedRequestIDs = slices.Clone(s.LinkedRequestIDs)
	return &cp
}
