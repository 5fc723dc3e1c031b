package records

import (
	"fmt"
	"time"

	"adjutant/internal/domain"
)

// PlanApplication reports what one ApplyPlan call changed.
type PlanApplication struct {
	Plan *domain.DayPlan
	// SurfacedRequestIDs are requests whose surface counters advanced in
	// this application. A replayed plan yields an empty list.
	SurfacedRequestIDs []string
	// PromotedInsightIDs are insights whose in_day_plan flag flipped in
	// this application.
	PromotedInsightIDs []string
}

type planApplyPayload struct {
	PlanID   string   `json:"plan_id"`
	Date     string   `json:"date"`
	Surfaced []string `json:"surfaced,omitempty"`
	Promoted []string `json:"promoted,omitempty"`
	Replayed bool     `json:"replayed"`
}

// ApplyPlan persists a day plan together with its feedback-loop side effects
// as one logical transaction: every linked request's surface counter advances
// and every insight-sourced focus item's insight is promoted, or none of it
// sticks. Applying the same plan a second time is a no-op for the counters —
// each request remembers which plan ids already surfaced it.
//
// The plans file is written first. If the process dies before the request or
// insight files land, the next load replays the side effects from the plan,
// so the write order doubles as a journal.
func (s *Store) ApplyPlan(p *domain.DayPlan) (*PlanApplication, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if other := s.planForDateLocked(p.Date); other != nil && other.ID != p.ID {
		return nil, domain.NewSubSystemError("records", "ApplyPlan", domain.ErrDuplicate,
			fmt.Sprintf("plan %s already covers %s", other.ID, p.Date))
	}

	// Resolve every reference up front. A plan pointing at a record that
	// does not exist would create a dangling link, so the whole save is
	// rejected before anything mutates.
	linkedRequests := p.LinkedRequestIDs()
	for _, id := range linkedRequests {
		if _, ok := s.requests[id]; !ok {
			return nil, domain.NewSubSystemError("records", "ApplyPlan", domain.ErrInvariant,
				fmt.Sprintf("focus item links unknown request %q", id))
		}
	}
	promotable := p.PromotedInsightIDs()
	for _, id := range promotable {
		if _, ok := s.insights[id]; !ok {
			return nil, domain.NewSubSystemError("records", "ApplyPlan", domain.ErrInvariant,
				fmt.Sprintf("focus item references unknown insight %q", id))
		}
	}

	// Undo set: everything this transaction may touch.
	prevPlan, planExisted := s.plans[p.ID]
	prevRequests := make(map[string]*domain.CustomerRequest, len(linkedRequests))
	for _, id := range linkedRequests {
		prevRequests[id] = s.requests[id].Clone()
	}
	prevInsights := make(map[string]*domain.StrategicInsight, len(promotable))
	for _, id := range promotable {
		prevInsights[id] = s.insights[id].Clone()
	}

	stored := p.Clone()
	refreshMeta(&stored.RecordMeta, prevPlan, planExisted)
	s.plans[p.ID] = stored

	surfacedAt := stored.GeneratedAt
	if surfacedAt.IsZero() {
		surfacedAt = time.Now().UTC()
	}

	var surfaced []string
	for _, id := range linkedRequests {
		r := s.requests[id]
		if r.Deleted {
			s.log.Warn("surfacing soft-deleted request", "plan", stored.ID, "request", id)
		}
		if r.MarkSurfaced(stored.ID, surfacedAt) {
			r.UpdatedAt = surfacedAt
			r.Version++
			surfaced = append(surfaced, id)
		}
	}

	var promoted []string
	for _, id := range promotable {
		in := s.insights[id]
		if in.Promote() {
			in.UpdatedAt = surfacedAt
			in.Version++
			promoted = append(promoted, id)
		}
	}

	rollback := func() {
		s.restorePlan(p.ID, prevPlan, planExisted)
		for id, prev := range prevRequests {
			s.requests[id] = prev
		}
		for id, prev := range prevInsights {
			s.insights[id] = prev
		}
	}

	// Write order matters: plans first (the journal), then the side
	// effects. See reconcile.
	if err := s.persistPlans(); err != nil {
		rollback()
		return nil, err
	}
	if len(surfaced) > 0 {
		if err := s.persistRequests(); err != nil {
			rollback()
			if rerr := s.persistPlans(); rerr != nil {
				s.log.Error("rollback plans file after apply failure", "error", rerr)
			}
			return nil, err
		}
	}
	if len(promoted) > 0 {
		if err := s.persistInsights(); err != nil {
			rollback()
			if rerr := s.persistPlans(); rerr != nil {
				s.log.Error("rollback plans file after apply failure", "error", rerr)
			}
			if rerr := s.persistRequests(); rerr != nil {
				s.log.Error("rollback requests file after apply failure", "error", rerr)
			}
			return nil, err
		}
	}

	s.publish(domain.EventPlanApplied, "", planApplyPayload{
		PlanID:   stored.ID,
		Date:     stored.Date,
		Surfaced: surfaced,
		Promoted: promoted,
		Replayed: planExisted,
	})
	for _, id := range promoted {
		s.publish(domain.EventInsightPromoted, "", recordEventPayload{Kind: domain.KindInsight, ID: id})
	}

	s.log.Info("plan applied",
		"plan", stored.ID,
		"date", stored.Date,
		"surfaced", len(surfaced),
		"promoted", len(promoted))

	return &PlanApplication{
		Plan:               stored.Clone(),
		SurfacedRequestIDs: surfaced,
		PromotedInsightIDs: promoted,
	}, nil
}
