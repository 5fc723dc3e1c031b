package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"adjutant/internal/domain"
)

const plannerSystemPrompt = `You are the chief-of-staff planner. From the morning briefing and the
backlog digest, produce today's plan: at most 5 focus items ranked 1 (first) to 5.

Ranking policy, in order:
1. open P0 customer requests
2. time-boxed calendar commitments from the briefing
3. risk insights not yet addressed in a plan
4. P1 requests that have gone stale
Use the record ids from the digest verbatim; never invent ids. A focus item built on a
customer request uses source_type "customer_request", source_ref and linked_request_ids
with that request's id. An item built on an insight uses source_type "insight" and
source_ref with the insight's id. Calendar items use "calendar", everything else "backlog".

Respond with JSON only:
{"focus_items": [{"rank": 1, "title": "...", "what": "...", "why": "...",
   "source_type": "customer_request|calendar|insight|backlog",
   "source_ref": "<record id or empty>",
   "linked_request_ids": ["<request id>"],
   "estimated_minutes": 60}],
 "meetings": [{"title": "...", "start": "09:30", "duration_minutes": 30}],
 "context_summary": "<2-3 sentences on the day's shape>",
 "customer_mentions": ["<customer name appearing in the briefing>"]}`

// Planner turns a briefing plus the current backlog into a day plan. The
// plan comes back unsaved; persisting it (and crediting the linked
// requests) is the orchestrator's job.
type Planner struct {
	llm       domain.LLMProvider
	staleDays int
	log       *slog.Logger
}

// NewPlanner builds the planner. staleDays controls when an untouched P1
// is called out as stale in the digest; zero means 14.
func NewPlanner(llm domain.LLMProvider, staleDays int, log *slog.Logger) *Planner {
	if staleDays <= 0 {
		staleDays = 14
	}
	if log == nil {
		log = slog.Default()
	}
	return &Planner{llm: llm, staleDays: staleDays, log: log}
}

// PlanDraft is the planner's output before persistence.
type PlanDraft struct {
	Plan             *domain.DayPlan
	CustomerMentions []string
	// Warnings carries policy notes: hallucinated ids that were dropped,
	// open P0s the plan leaves out.
	Warnings []string
}

type planResponse struct {
	FocusItems []struct {
		Rank             int      `json:"rank"`
		Title            string   `json:"title"`
		What             string   `json:"what"`
		Why              string   `json:"why"`
		SourceType       string   `json:"source_type"`
		SourceRef        string   `json:"source_ref"`
		LinkedRequestIDs []string `json:"linked_request_ids"`
		EstimatedMinutes int      `json:"estimated_minutes"`
	} `json:"focus_items"`
	Meetings []struct {
		Title           string `json:"title"`
		Start           string `json:"start"`
		DurationMinutes int    `json:"duration_minutes"`
	} `json:"meetings"`
	ContextSummary   string   `json:"context_summary"`
	CustomerMentions []string `json:"customer_mentions"`
}

// BuildPlan generates the plan for date (YYYY-MM-DD) from the briefing
// and the snapshot. Model output is sanitized before validation: unknown
// record ids are dropped with a warning, broken ranks are renumbered, and
// anything beyond five items is cut.
func (p *Planner) BuildPlan(ctx context.Context, briefing, date string, snap *domain.RecordSnapshot) (*PlanDraft, error) {
	digest := p.backlogDigest(snap)

	resp, err := p.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: plannerSystemPrompt},
			{Role: domain.RoleUser, Content: fmt.Sprintf("Date: %s\n\nBriefing:\n%s\n\n%s", date, briefing, digest)},
		},
		Temperature: zeroTemp(),
		JSONMode:    true,
	})
	if err != nil {
		return nil, domain.WrapOp("Planner.BuildPlan", err)
	}

	var parsed planResponse
	if err := decodeResponse(resp.Message.Content, &parsed); err != nil {
		return nil, domain.NewSubSystemError("specialist", "Planner.BuildPlan", domain.ErrProviderError,
			fmt.Sprintf("plan response unparseable: %v", err))
	}

	draft := p.assemble(parsed, date, snap)
	if err := draft.Plan.Validate(); err != nil {
		return nil, domain.WrapOp("Planner.BuildPlan", err)
	}
	return draft, nil
}

// assemble converts the parsed response into a validated-shape DayPlan.
func (p *Planner) assemble(parsed planResponse, date string, snap *domain.RecordSnapshot) *PlanDraft {
	knownRequests := make(map[string]*domain.CustomerRequest)
	for _, r := range snap.Requests {
		knownRequests[r.ID] = r
	}
	knownInsights := make(map[string]bool)
	for _, s := range snap.Insights {
		knownInsights[s.ID] = true
	}

	plan := domain.NewDayPlan(date)
	plan.ContextSummary = parsed.ContextSummary
	var warnings []string

	items := parsed.FocusItems
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rank < items[j].Rank })
	if len(items) > 5 {
		warnings = append(warnings, fmt.Sprintf("model proposed %d focus items, keeping the top 5", len(items)))
		items = items[:5]
	}

	for i, raw := range items {
		item := domain.FocusItem{
			Rank:             i + 1,
			Title:            strings.TrimSpace(raw.Title),
			What:             raw.What,
			Why:              raw.Why,
			SourceType:       domain.FocusSource(raw.SourceType),
			SourceRef:        strings.TrimSpace(raw.SourceRef),
			EstimatedMinutes: raw.EstimatedMinutes,
		}
		if !validFocusSource(item.SourceType) {
			item.SourceType = domain.FocusFromBacklog
		}

		switch item.SourceType {
		case domain.FocusFromRequest:
			ids := raw.LinkedRequestIDs
			if len(ids) == 0 && item.SourceRef != "" {
				ids = []string{item.SourceRef}
			}
			for _, id := range ids {
				if _, ok := knownRequests[id]; !ok {
					warnings = append(warnings, fmt.Sprintf("dropped unknown request id %q from %q", id, item.Title))
					continue
				}
				item.LinkedRequestIDs = append(item.LinkedRequestIDs, id)
			}
			if len(item.LinkedRequestIDs) == 0 {
				// A request item with no surviving link cannot credit anyone.
				item.SourceType = domain.FocusFromBacklog
				item.SourceRef = ""
			}
		case domain.FocusFromInsight:
			if !knownInsights[item.SourceRef] {
				warnings = append(warnings, fmt.Sprintf("dropped unknown insight id %q from %q", item.SourceRef, item.Title))
				item.SourceType = domain.FocusFromBacklog
				item.SourceRef = ""
			}
		}
		plan.FocusItems = append(plan.FocusItems, item)
	}

	for _, m := range parsed.Meetings {
		if strings.TrimSpace(m.Title) == "" {
			continue
		}
		plan.Meetings = append(plan.Meetings, domain.Meeting{
			Title:           m.Title,
			Start:           m.Start,
			DurationMinutes: m.DurationMinutes,
		})
	}

	warnings = append(warnings, p.missedP0s(plan, snap)...)

	mentions := make([]string, 0, len(parsed.CustomerMentions))
	for _, m := range parsed.CustomerMentions {
		if m = strings.TrimSpace(m); m != "" {
			mentions = append(mentions, m)
		}
	}

	return &PlanDraft{Plan: plan, CustomerMentions: mentions, Warnings: warnings}
}

// missedP0s warns for every open P0 the plan does not cover.
func (p *Planner) missedP0s(plan *domain.DayPlan, snap *domain.RecordSnapshot) []string {
	covered := make(map[string]bool)
	for _, id := range plan.LinkedRequestIDs() {
		covered[id] = true
	}
	var out []string
	for _, r := range snap.OpenRequests() {
		if r.Priority == domain.PriorityP0 && !covered[r.ID] {
			out = append(out, fmt.Sprintf("open P0 %s (%s) is not on the plan", r.ID, truncate(r.Description, 60)))
		}
	}
	return out
}

// backlogDigest renders the open requests and recent insights the model
// plans against. Stale P1s are flagged inline per the ranking policy.
func (p *Planner) backlogDigest(snap *domain.RecordSnapshot) string {
	var sb strings.Builder
	staleBefore := time.Now().UTC().AddDate(0, 0, -p.staleDays)

	open := snap.OpenRequests()
	sb.WriteString("Open requests:\n")
	if len(open) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, r := range open {
		flag := ""
		if r.Priority == domain.PriorityP1 && r.UpdatedAt.Before(staleBefore) {
			flag = " [stale]"
		}
		fmt.Fprintf(&sb, "- %s [%s/%s]%s surfaced %dx: %s\n",
			r.ID, r.Priority, r.Classification, flag, r.SurfaceCount, truncate(r.Description, 100))
	}

	sb.WriteString("\nRecent insights:\n")
	count := 0
	for i := len(snap.Insights) - 1; i >= 0 && count < 10; i-- {
		s := snap.Insights[i]
		planned := "unaddressed"
		if s.InDayPlan {
			planned = "already planned"
		}
		fmt.Fprintf(&sb, "- %s [%s/%s] (%s): %s\n",
			s.ID, s.InsightType, s.Confidence, planned, truncate(s.Title, 80))
		count++
	}
	if count == 0 {
		sb.WriteString("(none)\n")
	}
	return sb.String()
}

func validFocusSource(s domain.FocusSource) bool {
	switch s {
	case domain.FocusFromRequest, domain.FocusFromCalendar, domain.FocusFromEmail,
		domain.FocusFromTeams, domain.FocusFromInsight, domain.FocusFromBacklog:
		return true
	}
	return false
}
