package records

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adjutant/internal/domain"
)

func planLinking(date string, requestIDs ...string) *domain.DayPlan {
	p := domain.NewDayPlan(date)
	p.FocusItems = []domain.FocusItem{{
		Rank:             1,
		Title:            "Ship the fix",
		What:             "Close out the top customer issue",
		SourceType:       domain.FocusFromRequest,
		LinkedRequestIDs: requestIDs,
	}}
	return p
}

func TestApplyPlanSurfacesLinkedRequests(t *testing.T) {
	s := newTestStore(t)
	r := domain.NewCustomerRequest("export breaks on large files", "", domain.SourceChat)
	if _, err := s.SaveRequest(r); err != nil {
		t.Fatal(err)
	}

	p := planLinking("2026-03-02", r.ID)
	app, err := s.ApplyPlan(p)
	if err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}

	if len(app.SurfacedRequestIDs) != 1 || app.SurfacedRequestIDs[0] != r.ID {
		t.Errorf("SurfacedRequestIDs = %v, want [%s]", app.SurfacedRequestIDs, r.ID)
	}

	got, _ := s.GetRequest(r.ID)
	if got.SurfaceCount != 1 {
		t.Errorf("SurfaceCount = %d, want 1", got.SurfaceCount)
	}
	if got.LastSurfacedAt == nil || !got.LastSurfacedAt.Equal(p.GeneratedAt) {
		t.Errorf("LastSurfacedAt = %v, want plan generation time %v", got.LastSurfacedAt, p.GeneratedAt)
	}
	if len(got.SurfacedPlanIDs) != 1 || got.SurfacedPlanIDs[0] != p.ID {
		t.Errorf("SurfacedPlanIDs = %v", got.SurfacedPlanIDs)
	}
}

func TestApplyPlanReplayIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	r := domain.NewCustomerRequest("idempotence check", "", domain.SourceChat)
	if _, err := s.SaveRequest(r); err != nil {
		t.Fatal(err)
	}

	p := planLinking("2026-03-02", r.ID)
	if _, err := s.ApplyPlan(p); err != nil {
		t.Fatal(err)
	}

	app, err := s.ApplyPlan(p)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(app.SurfacedRequestIDs) != 0 {
		t.Errorf("replay surfaced %v, want nothing", app.SurfacedRequestIDs)
	}

	got, _ := s.GetRequest(r.ID)
	if got.SurfaceCount != 1 {
		t.Errorf("SurfaceCount after replay = %d, want 1", got.SurfaceCount)
	}
}

func TestApplyPlanCountsDistinctPlans(t *testing.T) {
	s := newTestStore(t)
	r := domain.NewCustomerRequest("surfaced twice", "", domain.SourceChat)
	if _, err := s.SaveRequest(r); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ApplyPlan(planLinking("2026-03-02", r.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyPlan(planLinking("2026-03-03", r.ID)); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetRequest(r.ID)
	if got.SurfaceCount != 2 {
		t.Errorf("SurfaceCount = %d, want 2 (one per distinct plan)", got.SurfaceCount)
	}
}

func TestApplyPlanPromotesInsight(t *testing.T) {
	s := newTestStore(t)
	in := domain.NewStrategicInsight(domain.InsightGap, "No self-serve billing")
	if _, err := s.SaveInsight(in); err != nil {
		t.Fatal(err)
	}

	p := domain.NewDayPlan("2026-03-02")
	p.FocusItems = []domain.FocusItem{{
		Rank: 1, Title: "Scope billing work", SourceType: domain.FocusFromInsight, SourceRef: in.ID,
	}}
	app, err := s.ApplyPlan(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(app.PromotedInsightIDs) != 1 || app.PromotedInsightIDs[0] != in.ID {
		t.Errorf("PromotedInsightIDs = %v", app.PromotedInsightIDs)
	}

	got, _ := s.GetInsight(in.ID)
	if !got.InDayPlan {
		t.Error("insight not promoted")
	}

	// Replay flips nothing a second time.
	app, err = s.ApplyPlan(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(app.PromotedInsightIDs) != 0 {
		t.Errorf("replay promoted %v", app.PromotedInsightIDs)
	}
}

func TestApplyPlanRejectsUnknownRequest(t *testing.T) {
	s := newTestStore(t)
	p := planLinking("2026-03-02", "ghost123")

	_, err := s.ApplyPlan(p)
	if !errors.Is(err, domain.ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
	if _, err := s.GetPlan(p.ID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Error("rejected plan was stored")
	}
}

func TestApplyPlanRejectsUnknownInsight(t *testing.T) {
	s := newTestStore(t)
	p := domain.NewDayPlan("2026-03-02")
	p.FocusItems = []domain.FocusItem{{
		Rank: 1, Title: "phantom", SourceType: domain.FocusFromInsight, SourceRef: "rdeadbee",
	}}

	if _, err := s.ApplyPlan(p); !errors.Is(err, domain.ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
}

func TestApplyPlanRejectsSecondPlanSameDate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ApplyPlan(planLinking("2026-03-02")); err != nil {
		t.Fatal(err)
	}
	_, err := s.ApplyPlan(planLinking("2026-03-02"))
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestApplyPlanPersistFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	r := domain.NewCustomerRequest("must stay clean", "", domain.SourceChat)
	if _, err := s.SaveRequest(r); err != nil {
		t.Fatal(err)
	}

	restore := breakDir(t, s)
	_, err := s.ApplyPlan(planLinking("2026-03-02", r.ID))
	restore()

	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	got, _ := s.GetRequest(r.ID)
	if got.SurfaceCount != 0 {
		t.Errorf("SurfaceCount = %d after failed apply, want 0", got.SurfaceCount)
	}
	if len(s.Plans()) != 0 {
		t.Error("failed plan left in memory")
	}
}

// A crash after the plans file lands but before the requests file does must
// be healed on the next load, and healing must not double-count.
func TestLoadReplaysPlanSideEffects(t *testing.T) {
	dir := t.TempDir()

	r := domain.NewCustomerRequest("crashed mid-save", "", domain.SourceChat)
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	r.Version = 1

	p := planLinking("2026-03-02", r.ID)
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	p.Version = 1

	writeList(t, filepath.Join(dir, requestsFile), []*domain.CustomerRequest{r})
	writeList(t, filepath.Join(dir, plansFile), []*domain.DayPlan{p})

	s, err := NewStore(dir, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	got, _ := s.GetRequest(r.ID)
	if got.SurfaceCount != 1 {
		t.Errorf("SurfaceCount = %d, want 1 after repair", got.SurfaceCount)
	}
	if got.LastSurfacedAt == nil || !got.LastSurfacedAt.Equal(p.GeneratedAt) {
		t.Errorf("LastSurfacedAt = %v, want %v", got.LastSurfacedAt, p.GeneratedAt)
	}

	// Reloading the repaired state changes nothing further.
	s2, err := NewStore(dir, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got, _ = s2.GetRequest(r.ID)
	if got.SurfaceCount != 1 {
		t.Errorf("SurfaceCount after second load = %d, want 1", got.SurfaceCount)
	}
}

// A one-sided link on disk is unioned to both sides at load.
func TestLoadRepairsOneSidedLink(t *testing.T) {
	dir := t.TempDir()

	r := domain.NewCustomerRequest("one side only", "", domain.SourceChat)
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	r.Version = 1

	in := domain.NewStrategicInsight(domain.InsightTrend, "pattern")
	in.LinkedRequestIDs = []string{r.ID}
	in.CreatedAt = time.Now().UTC()
	in.UpdatedAt = in.CreatedAt
	in.Version = 1

	writeList(t, filepath.Join(dir, requestsFile), []*domain.CustomerRequest{r})
	writeList(t, filepath.Join(dir, insightsFile), []*domain.StrategicInsight{in})

	s, err := NewStore(dir, testLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	gotR, _ := s.GetRequest(r.ID)
	if len(gotR.LinkedInsightIDs) != 1 || gotR.LinkedInsightIDs[0] != in.ID {
		t.Errorf("request back-reference not repaired: %v", gotR.LinkedInsightIDs)
	}
}

func writeList(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestApplyPlanReplaySkipsRequestsWrite(t *testing.T) {
	s := newTestStore(t)
	r := domain.NewCustomerRequest("replay write check", "", domain.SourceChat)
	if _, err := s.SaveRequest(r); err != nil {
		t.Fatal(err)
	}

	p := planLinking("2026-03-02", r.ID)
	if _, err := s.ApplyPlan(p); err != nil {
		t.Fatal(err)
	}

	// A replay surfaces nothing, so the requests file must stay untouched.
	path := s.pathFor(domain.KindCustomerRequest)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyPlan(p); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("replay rewrote the requests file")
	}
}
