package records

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"adjutant/internal/domain"
)

// Surface counters never decrease, and always equal the number of distinct
// plans that linked the request, no matter how applications and replays
// interleave.
func TestSurfaceCountTracksDistinctPlans(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, err := NewStore(t.TempDir(), testLogger(), nil)
		if err != nil {
			rt.Fatalf("NewStore: %v", err)
		}

		numRequests := rapid.IntRange(1, 4).Draw(rt, "num_requests")
		reqIDs := make([]string, numRequests)
		for i := range reqIDs {
			r := domain.NewCustomerRequest(fmt.Sprintf("request %d", i), "", domain.SourceChat)
			if _, err := s.SaveRequest(r); err != nil {
				rt.Fatalf("SaveRequest: %v", err)
			}
			reqIDs[i] = r.ID
		}

		linkedBy := make(map[string]map[string]bool) // request -> plan ids
		lastCount := make(map[string]int)
		var plans []*domain.DayPlan

		numOps := rapid.IntRange(1, 12).Draw(rt, "num_ops")
		for op := 0; op < numOps; op++ {
			replay := len(plans) > 0 && rapid.Bool().Draw(rt, "replay")

			var p *domain.DayPlan
			if replay {
				p = plans[rapid.IntRange(0, len(plans)-1).Draw(rt, "plan_idx")]
			} else {
				date := fmt.Sprintf("2026-04-%02d", len(plans)+1)
				k := rapid.IntRange(1, numRequests).Draw(rt, "links")
				linked := append([]string(nil), reqIDs[:k]...)
				p = planLinking(date, linked...)
				plans = append(plans, p)
				for _, id := range linked {
					if linkedBy[id] == nil {
						linkedBy[id] = make(map[string]bool)
					}
					linkedBy[id][p.ID] = true
				}
			}

			if _, err := s.ApplyPlan(p); err != nil {
				rt.Fatalf("ApplyPlan: %v", err)
			}

			for _, id := range reqIDs {
				got, err := s.GetRequest(id)
				if err != nil {
					rt.Fatalf("GetRequest: %v", err)
				}
				if got.SurfaceCount < lastCount[id] {
					rt.Fatalf("surface count decreased for %s: %d -> %d", id, lastCount[id], got.SurfaceCount)
				}
				if want := len(linkedBy[id]); got.SurfaceCount != want {
					rt.Fatalf("surface count for %s = %d, want %d distinct plans", id, got.SurfaceCount, want)
				}
				lastCount[id] = got.SurfaceCount
			}
		}
	})
}

// After any sequence of link calls and reloads, every request<->insight
// reference appears on both sides or neither.
func TestLinksStaySymmetric(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		s, err := NewStore(dir, testLogger(), nil)
		if err != nil {
			rt.Fatalf("NewStore: %v", err)
		}

		numReq := rapid.IntRange(1, 3).Draw(rt, "num_requests")
		numIns := rapid.IntRange(1, 3).Draw(rt, "num_insights")
		reqIDs := make([]string, numReq)
		insIDs := make([]string, numIns)
		for i := range reqIDs {
			r := domain.NewCustomerRequest(fmt.Sprintf("r%d", i), "", domain.SourceChat)
			if _, err := s.SaveRequest(r); err != nil {
				rt.Fatal(err)
			}
			reqIDs[i] = r.ID
		}
		for i := range insIDs {
			in := domain.NewStrategicInsight(domain.InsightTrend, fmt.Sprintf("i%d", i))
			if _, err := s.SaveInsight(in); err != nil {
				rt.Fatal(err)
			}
			insIDs[i] = in.ID
		}

		numOps := rapid.IntRange(1, 10).Draw(rt, "num_ops")
		for op := 0; op < numOps; op++ {
			if rapid.IntRange(0, 4).Draw(rt, "kind") == 0 {
				// Occasionally reload from disk mid-sequence.
				s, err = NewStore(dir, testLogger(), nil)
				if err != nil {
					rt.Fatalf("reload: %v", err)
				}
				continue
			}
			rid := reqIDs[rapid.IntRange(0, numReq-1).Draw(rt, "rid")]
			iid := insIDs[rapid.IntRange(0, numIns-1).Draw(rt, "iid")]
			if err := s.Link(rid, iid); err != nil {
				rt.Fatalf("Link: %v", err)
			}
		}

		for _, rid := range reqIDs {
			r, err := s.GetRequest(rid)
			if err != nil {
				rt.Fatal(err)
			}
			for _, iid := range r.LinkedInsightIDs {
				in, err := s.GetInsight(iid)
				if err != nil {
					rt.Fatalf("request %s links unknown insight %s", rid, iid)
				}
				if !contains(in.LinkedRequestIDs, rid) {
					rt.Fatalf("one-sided link: %s -> %s missing back-reference", rid, iid)
				}
			}
		}
		for _, iid := range insIDs {
			in, err := s.GetInsight(iid)
			if err != nil {
				rt.Fatal(err)
			}
			for _, rid := range in.LinkedRequestIDs {
				r, err := s.GetRequest(rid)
				if err != nil {
					rt.Fatalf("insight %s links unknown request %s", iid, rid)
				}
				if !contains(r.LinkedInsightIDs, iid) {
					rt.Fatalf("one-sided link: %s -> %s missing back-reference", iid, rid)
				}
			}
		}
	})
}

// Promotion is monotone across saves, applies, and reloads.
func TestPromotionNeverReverts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		s, err := NewStore(dir, testLogger(), nil)
		if err != nil {
			rt.Fatal(err)
		}

		in := domain.NewStrategicInsight(domain.InsightRisk, "monotone")
		if _, err := s.SaveInsight(in); err != nil {
			rt.Fatal(err)
		}

		p := domain.NewDayPlan("2026-04-01")
		p.FocusItems = []domain.FocusItem{{Rank: 1, Title: "x", SourceType: domain.FocusFromInsight, SourceRef: in.ID}}
		if _, err := s.ApplyPlan(p); err != nil {
			rt.Fatal(err)
		}

		numOps := rapid.IntRange(1, 8).Draw(rt, "num_ops")
		for op := 0; op < numOps; op++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				stale := in.Clone()
				stale.InDayPlan = false
				if _, err := s.SaveInsight(stale); err != nil {
					rt.Fatal(err)
				}
			case 1:
				if _, err := s.ApplyPlan(p); err != nil {
					rt.Fatal(err)
				}
			case 2:
				s, err = NewStore(dir, testLogger(), nil)
				if err != nil {
					rt.Fatal(err)
				}
			}

			got, err := s.GetInsight(in.ID)
			if err != nil {
				rt.Fatal(err)
			}
			if !got.InDayPlan {
				rt.Fatal("in_day_plan reverted to false")
			}
		}
	})
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
