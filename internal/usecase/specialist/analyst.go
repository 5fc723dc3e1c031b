package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"adjutant/internal/domain"
)

// modePrompts describes what each analysis mode looks for.
var modePrompts = map[domain.InsightType]string{
	domain.InsightTrend:    "recurring themes: clusters of requests pointing at the same underlying demand",
	domain.InsightGap:      "capability gaps: demand the product clearly cannot serve today",
	domain.InsightRisk:     "account and delivery risks: churn signals, blocked rollouts, contract exposure",
	domain.InsightDecision: "decision points: tradeoffs the team must resolve, with the evidence on each side",
}

const analystSystemPrompt = `You are the strategy analyst. Mine the request corpus below for %s.

Ground every insight in specific requests from the corpus; cite their ids. Confidence
follows the evidence: "high" needs 3+ corroborating requests or a P0 with an explicit
urgency signal, "medium" needs 2 related requests or inferred urgency, anything resting
on a single request or speculation is "low".

Respond with a JSON array only, up to 5 insights:
[{"title": "<short headline>",
  "what": "<the pattern in one or two sentences>",
  "why": "<why it matters>",
  "recommended_action": "<concrete next step>",
  "confidence": "high|medium|low",
  "linked_request_ids": ["<id from the corpus>"]}]`

// Analyst derives strategic insights from the request corpus. Insights
// come back unsaved; the orchestrator persists them and establishes the
// bidirectional request links.
type Analyst struct {
	llm         domain.LLMProvider
	corpusLimit int
	minCorpus   int
	log         *slog.Logger
}

// NewAnalyst builds the analyst. corpusLimit caps how many recent requests
// one analysis reads (zero means 50); minCorpus is the size under which
// results carry a low-data warning (zero means 10).
func NewAnalyst(llm domain.LLMProvider, corpusLimit, minCorpus int, log *slog.Logger) *Analyst {
	if corpusLimit <= 0 {
		corpusLimit = 50
	}
	if minCorpus <= 0 {
		minCorpus = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyst{llm: llm, corpusLimit: corpusLimit, minCorpus: minCorpus, log: log}
}

// AnalysisResult is one analysis run's output.
type AnalysisResult struct {
	Mode     domain.InsightType
	Insights []*domain.StrategicInsight
	// Warning is set when the corpus is too small for the patterns to
	// mean much. The analysis still runs; the caller decides how loudly
	// to say it.
	Warning string
}

type insightResponse struct {
	Title             string   `json:"title"`
	What              string   `json:"what"`
	Why               string   `json:"why"`
	RecommendedAction string   `json:"recommended_action"`
	Confidence        string   `json:"confidence"`
	LinkedRequestIDs  []string `json:"linked_request_ids"`
}

// Analyze runs one analysis mode over the most recent requests. Model
// claims are checked against the corpus: links to unknown ids are
// dropped, and a confidence grade the evidence cannot carry is
// downgraded.
func (a *Analyst) Analyze(ctx context.Context, mode domain.InsightType, snap *domain.RecordSnapshot, period string) (*AnalysisResult, error) {
	focus, ok := modePrompts[mode]
	if !ok {
		return nil, domain.NewSubSystemError("specialist", "Analyst.Analyze", domain.ErrInvalidInput,
			fmt.Sprintf("unknown analysis mode %q", mode))
	}
	if period == "" {
		period = "last-30-days"
	}

	corpus := a.corpus(snap)
	result := &AnalysisResult{Mode: mode}
	if len(corpus) < a.minCorpus {
		result.Warning = fmt.Sprintf("only %d requests on file (minimum %d for a reliable read); treat these as hypotheses",
			len(corpus), a.minCorpus)
	}
	if len(corpus) == 0 {
		return result, nil
	}

	resp, err := a.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(analystSystemPrompt, focus)},
			{Role: domain.RoleUser, Content: a.corpusDigest(corpus)},
		},
		Temperature: zeroTemp(),
		JSONMode:    true,
	})
	if err != nil {
		return nil, domain.WrapOp("Analyst.Analyze", err)
	}

	var parsed []insightResponse
	if err := decodeResponse(resp.Message.Content, &parsed); err != nil {
		return nil, domain.NewSubSystemError("specialist", "Analyst.Analyze", domain.ErrProviderError,
			fmt.Sprintf("analysis response unparseable: %v", err))
	}

	byID := make(map[string]*domain.CustomerRequest, len(corpus))
	for _, r := range corpus {
		byID[r.ID] = r
	}
	for _, item := range parsed {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		insight := domain.NewStrategicInsight(mode, strings.TrimSpace(item.Title))
		insight.What = item.What
		insight.Why = item.Why
		insight.RecommendedAction = item.RecommendedAction
		insight.Period = period
		for _, id := range item.LinkedRequestIDs {
			if _, known := byID[id]; !known {
				a.log.Warn("analysis cited an id outside the corpus, dropping", "id", id, "insight", insight.Title)
				continue
			}
			insight.LinkRequest(id)
		}
		insight.Confidence = gradeConfidence(domain.InsightConfidence(item.Confidence), insight.LinkedRequestIDs, byID)
		result.Insights = append(result.Insights, insight)
	}
	return result, nil
}

// gradeConfidence applies the evidence rule to the model's claimed grade.
// The grade can only move down: high needs 3+ corroborating requests or a
// linked P0 with stated urgency, medium needs 2 requests or a P0/P1 link.
func gradeConfidence(claimed domain.InsightConfidence, linked []string, byID map[string]*domain.CustomerRequest) domain.InsightConfidence {
	var urgentP0, highPri bool
	for _, id := range linked {
		r := byID[id]
		if r == nil {
			continue
		}
		if r.Priority == domain.PriorityP0 {
			highPri = true
			if r.PriorityRationale != "" {
				urgentP0 = true
			}
		}
		if r.Priority == domain.PriorityP1 {
			highPri = true
		}
	}

	earned := domain.ConfidenceLow
	switch {
	case len(linked) >= 3 || urgentP0:
		earned = domain.ConfidenceHigh
	case len(linked) >= 2 || highPri:
		earned = domain.ConfidenceMedium
	}

	if rank(claimed) == 0 || rank(claimed) > rank(earned) {
		return earned
	}
	return claimed
}

func rank(c domain.InsightConfidence) int {
	switch c {
	case domain.ConfidenceLow:
		return 1
	case domain.ConfidenceMedium:
		return 2
	case domain.ConfidenceHigh:
		return 3
	}
	return 0
}

// corpus returns the newest non-deleted requests up to the limit.
func (a *Analyst) corpus(snap *domain.RecordSnapshot) []*domain.CustomerRequest {
	reqs := snap.Requests
	if len(reqs) > a.corpusLimit {
		reqs = reqs[len(reqs)-a.corpusLimit:]
	}
	return reqs
}

func (a *Analyst) corpusDigest(corpus []*domain.CustomerRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request corpus (%d most recent):\n", len(corpus))
	for _, r := range corpus {
		tags := ""
		if len(r.Tags) > 0 {
			tags = " #" + strings.Join(r.Tags, " #")
		}
		fmt.Fprintf(&sb, "- %s [%s/%s/%s]%s: %s\n",
			r.ID, r.Priority, r.Classification, r.Status, tags, truncate(r.Description, 120))
	}
	return sb.String()
}

// ModeFromMessage detects which analysis the message asks for. Trend is
// the default read on generic pattern questions.
func ModeFromMessage(message string) domain.InsightType {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "risk"):
		return domain.InsightRisk
	case strings.Contains(lower, "gap") || strings.Contains(lower, "missing"):
		return domain.InsightGap
	case strings.Contains(lower, "decision") || strings.Contains(lower, "decide") || strings.Contains(lower, "trade-off") || strings.Contains(lower, "tradeoff"):
		return domain.InsightDecision
	default:
		return domain.InsightTrend
	}
}
