package records

import (
	"strings"
	"time"

	"adjutant/internal/domain"
)

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	Priority       domain.RequestPriority
	Classification domain.RequestClassification
	Status         domain.RequestStatus
	Tag            string
	// StaleDays selects open requests untouched for at least this many days.
	StaleDays      int
	IncludeDeleted bool
	Limit          int
}

// ListRequests returns requests matching the filter, oldest first.
func (s *Store) ListRequests(f RequestFilter) []*domain.CustomerRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Time{}
	if f.StaleDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -f.StaleDays)
	}

	out := make([]*domain.CustomerRequest, 0)
	for _, r := range s.requests {
		if r.Deleted && !f.IncludeDeleted {
			continue
		}
		if f.Priority != "" && r.Priority != f.Priority {
			continue
		}
		if f.Classification != "" && r.Classification != f.Classification {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Tag != "" && !containsFold(r.Tags, f.Tag) {
			continue
		}
		if !cutoff.IsZero() {
			if r.Status == domain.RequestStatusClosed || r.UpdatedAt.After(cutoff) {
				continue
			}
		}
		out = append(out, r.Clone())
	}
	sortByCreated(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// SearchRequests returns requests whose description, raw input, or tags
// contain the query, case-insensitively. Oldest first.
func (s *Store) SearchRequests(query string, limit int) []*domain.CustomerRequest {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.CustomerRequest, 0)
	for _, r := range s.requests {
		if r.Deleted {
			continue
		}
		if strings.Contains(strings.ToLower(r.Description), q) ||
			strings.Contains(strings.ToLower(r.RawInput), q) ||
			containsFold(r.Tags, q) {
			out = append(out, r.Clone())
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CountRequests returns the number of live requests. The analyst refuses to
// run pattern analysis below a minimum corpus size.
func (s *Store) CountRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.requests {
		if !r.Deleted {
			n++
		}
	}
	return n
}

// LatestPlan returns the plan with the most recent date, or nil when no plan
// exists yet.
func (s *Store) LatestPlan() *domain.DayPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.DayPlan
	for _, p := range s.plans {
		if p.Deleted {
			continue
		}
		// Dates are YYYY-MM-DD, so string order is date order.
		if latest == nil || p.Date > latest.Date {
			latest = p
		}
	}
	if latest == nil {
		return nil
	}
	return latest.Clone()
}

// PlanForDate returns the plan covering the given YYYY-MM-DD date.
func (s *Store) PlanForDate(date string) (*domain.DayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.planForDateLocked(date)
	if p == nil {
		return nil, domain.NewSubSystemError("records", "PlanForDate", domain.ErrRecordNotFound, date)
	}
	return p.Clone(), nil
}

// InsightFilter narrows ListInsights. Zero values mean "any".
type InsightFilter struct {
	Type           domain.InsightType
	Confidence     domain.InsightConfidence
	OnlyUnplanned  bool
	IncludeDeleted bool
	Limit          int
}

// ListInsights returns insights matching the filter, newest first — callers
// almost always want the latest analysis.
func (s *Store) ListInsights(f InsightFilter) []*domain.StrategicInsight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.StrategicInsight, 0)
	for _, in := range s.insights {
		if in.Deleted && !f.IncludeDeleted {
			continue
		}
		if f.Type != "" && in.InsightType != f.Type {
			continue
		}
		if f.Confidence != "" && in.Confidence != f.Confidence {
			continue
		}
		if f.OnlyUnplanned && in.InDayPlan {
			continue
		}
		out = append(out, in.Clone())
	}
	sortByCreated(out)
	// Reverse to newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
