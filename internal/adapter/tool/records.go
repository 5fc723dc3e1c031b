package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"adjutant/internal/domain"
	"adjutant/internal/infra/tracer"
	"adjutant/internal/usecase/records"
)

// defaultSearchLimit caps record listings when the caller doesn't ask for
// a specific count.
const defaultSearchLimit = 10

// RegisterRecordTools adds the record-facing builtins to the registry.
// These are the tools the seeded specialists are allowlisted for.
func RegisterRecordTools(reg *Registry, store *records.Store, searchLimit int, logger *slog.Logger) error {
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}
	for _, t := range []domain.Tool{
		&CurrentDateTool{logger: logger},
		&ListRequestsTool{store: store, limit: searchLimit, logger: logger},
		&BacklogSearchTool{store: store, limit: searchLimit, logger: logger},
		&GetPlanTool{store: store, logger: logger},
		&GetInsightsTool{store: store, limit: searchLimit, logger: logger},
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// requestView is the compact request shape handed back to the model.
type requestView struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	Classification string   `json:"classification"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	Tags           []string `json:"tags,omitempty"`
	SurfaceCount   int      `json:"surface_count"`
	UpdatedAt      string   `json:"updated_at"`
}

func toRequestView(r *domain.CustomerRequest) requestView {
	return requestView{
		ID:             r.ID,
		Description:    r.Description,
		Classification: string(r.Classification),
		Priority:       string(r.Priority),
		Status:         string(r.Status),
		Tags:           r.Tags,
		SurfaceCount:   r.SurfaceCount,
		UpdatedAt:      r.UpdatedAt.UTC().Format("2006-01-02"),
	}
}

// --- current_date ---

// CurrentDateTool reports today's date so specialists never guess it from
// training data.
type CurrentDateTool struct {
	logger *slog.Logger
}

func (t *CurrentDateTool) Name() string { return "current_date" }
func (t *CurrentDateTool) Description() string {
	return "Get the current date and time (UTC). Use before any date arithmetic."
}

func (t *CurrentDateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *CurrentDateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.current_date", t.logger, params,
		func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
			now := time.Now().UTC()
			return map[string]string{
				"date":    now.Format("2006-01-02"),
				"weekday": now.Weekday().String(),
				"time":    now.Format("15:04") + " UTC",
			}, nil
		},
	)
}

// --- list_requests ---

// ListRequestsTool filters the shared request backlog.
type ListRequestsTool struct {
	store  *records.Store
	limit  int
	logger *slog.Logger
}

type listRequestsParams struct {
	Priority       string `json:"priority"`
	Classification string `json:"classification"`
	Status         string `json:"status"`
	Tag            string `json:"tag"`
	Limit          int    `json:"limit"`
}

func (t *ListRequestsTool) Name() string { return "list_requests" }
func (t *ListRequestsTool) Description() string {
	return "List customer requests from the shared records, oldest first. All filters optional."
}

func (t *ListRequestsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"priority": {"type": "string", "enum": ["P0", "P1", "P2", "P3"], "description": "Filter by priority."},
				"classification": {"type": "string", "enum": ["feature_request", "bug_report", "integration", "support", "feedback"], "description": "Filter by classification."},
				"status": {"type": "string", "enum": ["new", "triaged", "in_review", "linked", "closed"], "description": "Filter by status."},
				"tag": {"type": "string", "description": "Filter by tag, e.g. \"stale\"."},
				"limit": {"type": "integer", "minimum": 1, "description": "Max results."}
			}
		}`),
	}
}

func (t *ListRequestsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_requests", t.logger, params,
		func(_ context.Context, span trace.Span, p listRequestsParams) (any, error) {
			limit := p.Limit
			if limit <= 0 || limit > t.limit {
				limit = t.limit
			}
			matches := t.store.ListRequests(records.RequestFilter{
				Priority:       domain.RequestPriority(p.Priority),
				Classification: domain.RequestClassification(p.Classification),
				Status:         domain.RequestStatus(p.Status),
				Tag:            p.Tag,
				Limit:          limit,
			})
			span.SetAttributes(tracer.IntAttr("tool.results", len(matches)))

			views := make([]requestView, 0, len(matches))
			for _, r := range matches {
				views = append(views, toRequestView(r))
			}
			return map[string]any{
				"count":    len(views),
				"requests": views,
			}, nil
		},
	)
}

// --- backlog_search ---

// BacklogSearchTool does keyword search over request descriptions and tags.
type BacklogSearchTool struct {
	store  *records.Store
	limit  int
	logger *slog.Logger
}

type backlogSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (t *BacklogSearchTool) Name() string { return "backlog_search" }
func (t *BacklogSearchTool) Description() string {
	return "Keyword-search the request backlog (descriptions, raw input, tags). Use to check whether a theme already has recorded demand."
}

func (t *BacklogSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "description": "Keywords to search for."},
				"limit": {"type": "integer", "minimum": 1, "description": "Max results."}
			},
			"required": ["query"]
		}`),
	}
}

func (t *BacklogSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.backlog_search", t.logger, params,
		func(_ context.Context, span trace.Span, p backlogSearchParams) (any, error) {
			query := strings.TrimSpace(p.Query)
			if query == "" {
				return ErrResult("query must not be empty")
			}
			limit := p.Limit
			if limit <= 0 || limit > t.limit {
				limit = t.limit
			}
			matches := t.store.SearchRequests(query, limit)
			span.SetAttributes(tracer.IntAttr("tool.results", len(matches)))

			if len(matches) == 0 {
				return TextResult(fmt.Sprintf("no requests match %q", query)), nil
			}
			views := make([]requestView, 0, len(matches))
			for _, r := range matches {
				views = append(views, toRequestView(r))
			}
			return map[string]any{
				"count":    len(views),
				"requests": views,
			}, nil
		},
	)
}

// --- get_plan ---

// GetPlanTool reads a day plan from the shared records.
type GetPlanTool struct {
	store  *records.Store
	logger *slog.Logger
}

type getPlanParams struct {
	Date string `json:"date"`
}

func (t *GetPlanTool) Name() string { return "get_plan" }
func (t *GetPlanTool) Description() string {
	return "Get the day plan for a date (YYYY-MM-DD), or the latest plan when no date is given."
}

func (t *GetPlanTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$", "description": "Plan date, YYYY-MM-DD. Omit for the latest plan."}
			}
		}`),
	}
}

func (t *GetPlanTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_plan", t.logger, params,
		func(_ context.Context, _ trace.Span, p getPlanParams) (any, error) {
			var plan *domain.DayPlan
			if p.Date != "" {
				found, err := t.store.PlanForDate(p.Date)
				if err != nil {
					return ErrResult("no plan for %s", p.Date)
				}
				plan = found
			} else {
				plan = t.store.LatestPlan()
				if plan == nil {
					return TextResult("no plans recorded yet"), nil
				}
			}

			type itemView struct {
				Rank      int    `json:"rank"`
				Title     string `json:"title"`
				Why       string `json:"why,omitempty"`
				SourceRef string `json:"source_ref,omitempty"`
				Done      bool   `json:"done"`
			}
			items := make([]itemView, 0, len(plan.FocusItems))
			for _, it := range plan.FocusItems {
				items = append(items, itemView{
					Rank: it.Rank, Title: it.Title, Why: it.Why,
					SourceRef: it.SourceRef, Done: it.Done,
				})
			}
			return map[string]any{
				"id":          plan.ID,
				"date":        plan.Date,
				"focus_items": items,
				"meetings":    plan.Meetings,
				"summary":     plan.ContextSummary,
			}, nil
		},
	)
}

// --- get_insights ---

// GetInsightsTool reads strategic insights from the shared records.
type GetInsightsTool struct {
	store  *records.Store
	limit  int
	logger *slog.Logger
}

type getInsightsParams struct {
	Type          string `json:"type"`
	Confidence    string `json:"confidence"`
	OnlyUnplanned bool   `json:"only_unplanned"`
	Limit         int    `json:"limit"`
}

func (t *GetInsightsTool) Name() string { return "get_insights" }
func (t *GetInsightsTool) Description() string {
	return "List strategic insights, newest first. All filters optional."
}

func (t *GetInsightsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"type": {"type": "string", "enum": ["trend", "gap", "risk", "decision"], "description": "Filter by insight type."},
				"confidence": {"type": "string", "enum": ["low", "medium", "high"], "description": "Filter by confidence."},
				"only_unplanned": {"type": "boolean", "description": "Only insights not yet promoted into a day plan."},
				"limit": {"type": "integer", "minimum": 1, "description": "Max results."}
			}
		}`),
	}
}

func (t *GetInsightsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_insights", t.logger, params,
		func(_ context.Context, span trace.Span, p getInsightsParams) (any, error) {
			limit := p.Limit
			if limit <= 0 || limit > t.limit {
				limit = t.limit
			}
			matches := t.store.ListInsights(records.InsightFilter{
				Type:          domain.InsightType(p.Type),
				Confidence:    domain.InsightConfidence(p.Confidence),
				OnlyUnplanned: p.OnlyUnplanned,
				Limit:         limit,
			})
			span.SetAttributes(tracer.IntAttr("tool.results", len(matches)))

			type insightView struct {
				ID               string   `json:"id"`
				Type             string   `json:"type"`
				Title            string   `json:"title"`
				Confidence       string   `json:"confidence"`
				Period           string   `json:"period"`
				LinkedRequestIDs []string `json:"linked_request_ids,omitempty"`
				InDayPlan        bool     `json:"in_day_plan"`
			}
			views := make([]insightView, 0, len(matches))
			for _, in := range matches {
				views = append(views, insightView{
					ID:               in.ID,
					Type:             string(in.InsightType),
					Title:            in.Title,
					Confidence:       string(in.Confidence),
					Period:           in.Period,
					LinkedRequestIDs: in.LinkedRequestIDs,
					InDayPlan:        in.InDayPlan,
				})
			}
			return map[string]any{
				"count":    len(views),
				"insights": views,
			}, nil
		},
	)
}
