package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/usecase/specialist"
)

func newTestExecutor(llm domain.LLMProvider) *Executor {
	log := testLogger()
	return NewExecutor(
		specialist.NewIntake(llm, 0, log),
		specialist.NewPlanner(llm, 0, log),
		specialist.NewAnalyst(llm, 0, 1, log),
		specialist.NewRunner(llm, nil, 0, nil, log),
		log,
	)
}

func descriptor(key string, writes ...domain.RecordKind) domain.AgentDescriptor {
	return domain.AgentDescriptor{Key: key, Label: key, Writes: writes}
}

func emptySnapshot() *domain.RecordSnapshot {
	return &domain.RecordSnapshot{TakenAt: time.Now().UTC()}
}

func TestExecuteIntakeSingleProducesUpsertDelta(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"description": "Acme wants SSO on the admin console",
		  "classification": "feature_request", "classification_rationale": "new capability",
		  "priority": "P1", "priority_rationale": "contract renewal at stake",
		  "tags": ["sso"]}`,
	}}
	e := newTestExecutor(llm)

	out, err := e.Execute(context.Background(), domain.AgentCall{
		Descriptor: descriptor("intake", domain.KindCustomerRequest),
		Message:    "log this: Acme wants SSO on the admin console",
		Snapshot:   emptySnapshot(),
		SessionID:  "s1",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Deltas) != 1 {
		t.Fatalf("deltas = %d, want 1", len(out.Deltas))
	}
	d := out.Deltas[0]
	if d.Op != domain.DeltaUpsert || d.Kind != domain.KindCustomerRequest {
		t.Errorf("delta = %+v", d)
	}
	req, ok := d.Record.(*domain.CustomerRequest)
	if !ok {
		t.Fatalf("record type %T", d.Record)
	}
	if req.Priority != domain.PriorityP1 || req.Status != domain.RequestStatusTriaged {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(out.Text, req.ID) {
		t.Errorf("text %q does not mention the filed id", out.Text)
	}
}

func TestExecuteIntakeBulkOnRawDrop(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`[{"line": 1, "description": "Globex CSV export", "classification": "feature_request", "priority": "P2", "tags": []},
		  {"line": 2, "description": "Initech webhook retries broken", "classification": "bug_report", "priority": "P1", "tags": []}]`,
	}}
	e := newTestExecutor(llm)

	paste := "customer,ask,severity\n" +
		"Globex, CSV export for billing, medium\n" +
		"Initech, webhook retries broken, high\n" +
		"Umbrella, nothing actionable, low\n"
	out, err := e.Execute(context.Background(), domain.AgentCall{
		Descriptor: descriptor("intake", domain.KindCustomerRequest),
		Message:    paste,
		Snapshot:   emptySnapshot(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Deltas) != 2 {
		t.Fatalf("deltas = %d, want 2", len(out.Deltas))
	}
	for _, d := range out.Deltas {
		if d.Kind != domain.KindCustomerRequest || d.Op != domain.DeltaUpsert {
			t.Errorf("delta = %+v", d)
		}
	}
}

func TestExecutePlannerProducesPlanDelta(t *testing.T) {
	req := domain.NewCustomerRequest("Acme SSO", "raw", domain.SourceChat)
	req.Priority = domain.PriorityP0
	snap := emptySnapshot()
	snap.Requests = []*domain.CustomerRequest{req}

	llm := &scriptedLLM{responses: []string{
		`{"focus_items": [{"rank": 1, "title": "Unblock Acme SSO", "what": "scope the work",
		   "why": "P0", "source_type": "customer_request", "source_ref": "` + req.ID + `",
		   "linked_request_ids": ["` + req.ID + `"], "estimated_minutes": 90}],
		  "meetings": [], "context_summary": "One fire to put out.", "customer_mentions": ["Acme"]}`,
	}}
	e := newTestExecutor(llm)

	out, err := e.Execute(context.Background(), domain.AgentCall{
		Descriptor: descriptor("planner", domain.KindDayPlan),
		Message:    "here is my morning briefing: all quiet except Acme",
		Snapshot:   snap,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Deltas) != 1 {
		t.Fatalf("deltas = %d, want 1", len(out.Deltas))
	}
	plan, ok := out.Deltas[0].Record.(*domain.DayPlan)
	if !ok {
		t.Fatalf("record type %T", out.Deltas[0].Record)
	}
	if got := plan.LinkedRequestIDs(); len(got) != 1 || got[0] != req.ID {
		t.Errorf("LinkedRequestIDs = %v", got)
	}
	if !strings.Contains(out.Text, "Unblock Acme SSO") {
		t.Errorf("text = %q", out.Text)
	}
}

func TestExecuteAnalystProducesInsightAndLinkDeltas(t *testing.T) {
	r1 := domain.NewCustomerRequest("Acme wants SSO", "raw", domain.SourceChat)
	r2 := domain.NewCustomerRequest("Globex wants SAML", "raw", domain.SourceChat)
	snap := emptySnapshot()
	snap.Requests = []*domain.CustomerRequest{r1, r2}

	llm := &scriptedLLM{responses: []string{
		`[{"title": "Enterprise auth demand", "what": "Two accounts ask for enterprise SSO",
		   "why": "Blocks upmarket deals", "recommended_action": "Scope an auth epic",
		   "confidence": "medium", "linked_request_ids": ["` + r1.ID + `", "` + r2.ID + `"]}]`,
	}}
	e := newTestExecutor(llm)

	out, err := e.Execute(context.Background(), domain.AgentCall{
		Descriptor: descriptor("analyst", domain.KindInsight),
		Message:    "any trends in the backlog?",
		Snapshot:   snap,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var upserts, links int
	for _, d := range out.Deltas {
		switch d.Op {
		case domain.DeltaUpsert:
			upserts++
			if d.Kind != domain.KindInsight {
				t.Errorf("upsert kind = %q", d.Kind)
			}
		case domain.DeltaLink:
			links++
			if d.RequestID == "" || d.InsightID == "" {
				t.Errorf("link delta incomplete: %+v", d)
			}
		}
	}
	if upserts != 1 || links != 2 {
		t.Errorf("upserts/links = %d/%d, want 1/2", upserts, links)
	}
}

func TestExecutePersonaFallsThroughToRunner(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"The weakest assumption is that churn is price-driven."}}
	e := newTestExecutor(llm)

	out, err := e.Execute(context.Background(), domain.AgentCall{
		Descriptor: domain.AgentDescriptor{Key: "challenger", Label: "Challenger", Persona: "You are the challenger."},
		Message:    "poke holes in the retention plan",
		Snapshot:   emptySnapshot(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Deltas) != 0 {
		t.Errorf("persona produced deltas: %+v", out.Deltas)
	}
	if !strings.Contains(out.Text, "weakest assumption") {
		t.Errorf("text = %q", out.Text)
	}
}
