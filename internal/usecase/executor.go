package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/usecase/multiagent"
	"adjutant/internal/usecase/specialist"
)

// Executor dispatches one agent call to the specialist that implements
// it: the three builtin record writers run their structured pipelines
// and return record deltas, everything else runs as a conversational
// persona turn. The orchestrator never knows which path a call took.
type Executor struct {
	intake  *specialist.Intake
	planner *specialist.Planner
	analyst *specialist.Analyst
	runner  *specialist.Runner
	log     *slog.Logger
}

var _ domain.AgentExecutor = (*Executor)(nil)

// NewExecutor builds the dispatcher over the four specialists.
func NewExecutor(intake *specialist.Intake, planner *specialist.Planner, analyst *specialist.Analyst, runner *specialist.Runner, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{intake: intake, planner: planner, analyst: analyst, runner: runner, log: log}
}

// Execute runs one agent call.
func (e *Executor) Execute(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	switch call.Descriptor.Key {
	case "intake":
		return e.runIntake(ctx, call)
	case "planner":
		return e.runPlanner(ctx, call)
	case "analyst":
		return e.runAnalyst(ctx, call)
	default:
		return e.runner.Run(ctx, call)
	}
}

// runIntake files the message as one or many customer requests. The
// requests come back as upsert deltas; nothing touches the store here.
func (e *Executor) runIntake(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	out := &domain.AgentOutput{AgentKey: call.Descriptor.Key, Label: call.Descriptor.Label}

	if multiagent.LooksLikeRawDrop(call.Message) {
		reqs := e.intake.BulkIngest(ctx, call.Message, domain.SourceChat, call.SessionID)
		if len(reqs) == 0 {
			out.Text = "I didn't find any loggable items in that paste."
			return out, nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Filed %d requests from the paste:\n", len(reqs))
		for _, req := range reqs {
			fmt.Fprintf(&sb, "- %s\n", specialist.RequestSummary(req))
			out.Deltas = append(out.Deltas, domain.RecordDelta{
				Op:      domain.DeltaUpsert,
				Kind:    domain.KindCustomerRequest,
				Record:  req,
				Summary: specialist.RequestSummary(req),
			})
		}
		out.Text = strings.TrimRight(sb.String(), "\n")
		return out, nil
	}

	req := e.intake.Classify(ctx, call.Message, domain.SourceChat, call.SessionID)
	out.Text = specialist.RequestSummary(req)
	if req.ClassificationRationale != "" {
		out.Text += "\n" + req.ClassificationRationale
	}
	out.Deltas = []domain.RecordDelta{{
		Op:      domain.DeltaUpsert,
		Kind:    domain.KindCustomerRequest,
		Record:  req,
		Summary: specialist.RequestSummary(req),
	}}
	return out, nil
}

// runPlanner drafts the day plan for today from the message as briefing.
// The plan travels back as a delta; the orchestrator persists it through
// ApplyPlan so the surfacing side effects fire.
func (e *Executor) runPlanner(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	date := time.Now().UTC().Format("2006-01-02")
	draft, err := e.planner.BuildPlan(ctx, call.Message, date, call.Snapshot)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Day plan for %s:\n", draft.Plan.Date)
	for _, item := range draft.Plan.FocusItems {
		fmt.Fprintf(&sb, "%d. %s", item.Rank, item.Title)
		if len(item.LinkedRequestIDs) > 0 {
			fmt.Fprintf(&sb, " (requests: %s)", strings.Join(item.LinkedRequestIDs, ", "))
		}
		sb.WriteString("\n")
	}
	if draft.Plan.ContextSummary != "" {
		fmt.Fprintf(&sb, "\n%s\n", draft.Plan.ContextSummary)
	}
	for _, w := range draft.Warnings {
		fmt.Fprintf(&sb, "⚠ %s\n", w)
	}
	if len(draft.CustomerMentions) > 0 {
		fmt.Fprintf(&sb, "Customers mentioned: %s\n", strings.Join(draft.CustomerMentions, ", "))
	}

	return &domain.AgentOutput{
		AgentKey: call.Descriptor.Key,
		Label:    call.Descriptor.Label,
		Text:     strings.TrimRight(sb.String(), "\n"),
		Deltas: []domain.RecordDelta{{
			Op:      domain.DeltaUpsert,
			Kind:    domain.KindDayPlan,
			Record:  draft.Plan,
			Summary: fmt.Sprintf("day plan %s for %s (%d focus items)", draft.Plan.ID, draft.Plan.Date, len(draft.Plan.FocusItems)),
		}},
	}, nil
}

// runAnalyst mines the snapshot corpus in the mode the message asks for.
// Each insight becomes an upsert delta plus one link delta per cited
// request, so the bidirectional references commit in the same cycle.
func (e *Executor) runAnalyst(ctx context.Context, call domain.AgentCall) (*domain.AgentOutput, error) {
	mode := specialist.ModeFromMessage(call.Message)
	result, err := e.analyst.Analyze(ctx, mode, call.Snapshot, "")
	if err != nil {
		return nil, err
	}

	out := &domain.AgentOutput{AgentKey: call.Descriptor.Key, Label: call.Descriptor.Label}
	var sb strings.Builder
	if result.Warning != "" {
		fmt.Fprintf(&sb, "⚠ %s\n\n", result.Warning)
	}
	if len(result.Insights) == 0 {
		sb.WriteString("No " + string(mode) + " insights stood out in the current corpus.")
		out.Text = sb.String()
		return out, nil
	}

	fmt.Fprintf(&sb, "%d %s insight(s):\n", len(result.Insights), mode)
	for _, in := range result.Insights {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", in.Confidence, in.Title, in.What)
		if in.RecommendedAction != "" {
			fmt.Fprintf(&sb, "  → %s\n", in.RecommendedAction)
		}
		out.Deltas = append(out.Deltas, domain.RecordDelta{
			Op:      domain.DeltaUpsert,
			Kind:    domain.KindInsight,
			Record:  in,
			Summary: fmt.Sprintf("insight %s [%s/%s] %s", in.ID, in.InsightType, in.Confidence, in.Title),
		})
		for _, reqID := range in.LinkedRequestIDs {
			out.Deltas = append(out.Deltas, domain.RecordDelta{
				Op:        domain.DeltaLink,
				Kind:      domain.KindInsight,
				RequestID: reqID,
				InsightID: in.ID,
				Summary:   fmt.Sprintf("linked request %s ↔ insight %s", reqID, in.ID),
			})
		}
	}
	out.Text = strings.TrimRight(sb.String(), "\n")
	return out, nil
}
