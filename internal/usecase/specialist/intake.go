package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"adjutant/internal/domain"
)

const intakeSystemPrompt = `You are the intake analyst for a product team. You turn raw inbound
demand (chat notes, emails, call transcripts) into structured customer requests.

Classify into exactly one of: feature_request, bug_report, integration, support, feedback.
Priority runs P0 (drop everything) to P3 (nice to have). Default to P2 unless the text
carries an explicit urgency or impact signal; reserve P0 for outage-level or contract-risk
language.

Respond with JSON only, no prose:
{"description": "<one-sentence normalized description>",
 "classification": "<category>",
 "classification_rationale": "<one sentence>",
 "priority": "<P0|P1|P2|P3>",
 "priority_rationale": "<one sentence>",
 "tags": ["<short-tag>", ...]}`

const intakeBulkPrompt = `You are the intake analyst for a product team. Each numbered line below
is one raw inbound item. Produce one structured request per plausible item; skip headers,
separators, and lines that carry no demand.

Respond with a JSON array only, no prose. One element per kept line:
[{"line": <number>,
  "description": "<one-sentence normalized description>",
  "classification": "<feature_request|bug_report|integration|support|feedback>",
  "priority": "<P0|P1|P2|P3>",
  "tags": ["<short-tag>", ...]}]`

// intakeLogPrefixes are stripped from the message before classification.
// Kept in sync with the router's logging-phrase rule.
var intakeLogPrefixes = []string{"log this:", "log:", "add request:", "add this:"}

// Intake classifies free-text demand into customer requests. It never
// writes the store; callers receive the built records as deltas.
type Intake struct {
	llm     domain.LLMProvider
	bulkCap int
	log     *slog.Logger
}

// NewIntake builds the intake specialist. bulkCap limits how many requests
// one pasted drop can produce; zero means the default of 20.
func NewIntake(llm domain.LLMProvider, bulkCap int, log *slog.Logger) *Intake {
	if bulkCap <= 0 {
		bulkCap = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Intake{llm: llm, bulkCap: bulkCap, log: log}
}

// StripLogPrefix removes a leading logging phrase ("log this:", "log:",
// "add request:", "add this:") from the message, case-insensitively.
func StripLogPrefix(message string) string {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)
	for _, prefix := range intakeLogPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return trimmed
}

type intakeClassification struct {
	Description             string   `json:"description"`
	Classification          string   `json:"classification"`
	ClassificationRationale string   `json:"classification_rationale"`
	Priority                string   `json:"priority"`
	PriorityRationale       string   `json:"priority_rationale"`
	Tags                    []string `json:"tags"`
}

// Classify turns one free-text item into a triaged CustomerRequest. When
// the model response cannot be parsed the request still gets logged, as a
// feature_request/P2 with the parse note in the rationale: losing a
// customer's ask is worse than a rough classification.
func (in *Intake) Classify(ctx context.Context, text string, source domain.RequestSource, sourceRef string) *domain.CustomerRequest {
	cleaned := StripLogPrefix(text)
	req := domain.NewCustomerRequest(cleaned, text, source)
	req.SourceRef = sourceRef
	req.Status = domain.RequestStatusTriaged

	resp, err := in.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: intakeSystemPrompt},
			{Role: domain.RoleUser, Content: cleaned},
		},
		Temperature: zeroTemp(),
		JSONMode:    true,
	})
	if err != nil {
		in.log.Warn("intake classification call failed, using fallback", "error", err)
		req.ClassificationRationale = "auto-filed with defaults; classification call failed"
		return req
	}

	var c intakeClassification
	if err := decodeResponse(resp.Message.Content, &c); err != nil {
		in.log.Warn("intake classification unparseable, using fallback", "error", err)
		req.ClassificationRationale = "auto-filed with defaults; classifier response was not valid JSON"
		return req
	}

	applyClassification(req, c)
	return req
}

// applyClassification copies model output onto the request, keeping the
// defaults for any field outside the closed sets.
func applyClassification(req *domain.CustomerRequest, c intakeClassification) {
	if d := strings.TrimSpace(c.Description); d != "" {
		req.Description = d
	}
	if cl := domain.RequestClassification(c.Classification); validClassification(cl) {
		req.Classification = cl
		req.ClassificationRationale = c.ClassificationRationale
	}
	if p := domain.RequestPriority(strings.ToUpper(c.Priority)); validPriority(p) {
		req.Priority = p
		req.PriorityRationale = c.PriorityRationale
	}
	for _, tag := range c.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			req.Tags = append(req.Tags, tag)
		}
	}
}

func validClassification(c domain.RequestClassification) bool {
	switch c {
	case domain.ClassFeatureRequest, domain.ClassBugReport, domain.ClassIntegration,
		domain.ClassSupport, domain.ClassFeedback:
		return true
	}
	return false
}

func validPriority(p domain.RequestPriority) bool {
	switch p {
	case domain.PriorityP0, domain.PriorityP1, domain.PriorityP2, domain.PriorityP3:
		return true
	}
	return false
}

type bulkItem struct {
	Line           int      `json:"line"`
	Description    string   `json:"description"`
	Classification string   `json:"classification"`
	Priority       string   `json:"priority"`
	Tags           []string `json:"tags"`
}

// BulkIngest splits pasted or extracted text into candidate items and
// classifies them in one call. The result is capped; skipped lines are
// the model's call (headers, separators). On classification failure every
// candidate line is still filed with defaults.
func (in *Intake) BulkIngest(ctx context.Context, text string, source domain.RequestSource, sourceRef string) []*domain.CustomerRequest {
	candidates := splitCandidates(text, in.bulkCap)
	if len(candidates) == 0 {
		return nil
	}

	var sb strings.Builder
	for i, line := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
	}

	resp, err := in.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: intakeBulkPrompt},
			{Role: domain.RoleUser, Content: sb.String()},
		},
		Temperature: zeroTemp(),
		JSONMode:    true,
	})
	if err == nil {
		var items []bulkItem
		err = decodeResponse(resp.Message.Content, &items)
		if err == nil {
			return in.buildBulk(candidates, items, source, sourceRef)
		}
	}

	in.log.Warn("bulk classification failed, filing candidates with defaults", "error", err)
	out := make([]*domain.CustomerRequest, 0, len(candidates))
	for _, line := range candidates {
		req := domain.NewCustomerRequest(line, line, source)
		req.SourceRef = sourceRef
		req.Status = domain.RequestStatusTriaged
		req.ClassificationRationale = "auto-filed with defaults; bulk classifier unavailable"
		out = append(out, req)
	}
	return out
}

func (in *Intake) buildBulk(candidates []string, items []bulkItem, source domain.RequestSource, sourceRef string) []*domain.CustomerRequest {
	out := make([]*domain.CustomerRequest, 0, len(items))
	for _, item := range items {
		if item.Line < 1 || item.Line > len(candidates) {
			continue
		}
		raw := candidates[item.Line-1]
		req := domain.NewCustomerRequest(raw, raw, source)
		req.SourceRef = sourceRef
		req.Status = domain.RequestStatusTriaged
		applyClassification(req, intakeClassification{
			Description:    item.Description,
			Classification: item.Classification,
			Priority:       item.Priority,
			Tags:           item.Tags,
		})
		out = append(out, req)
		if len(out) >= in.bulkCap {
			break
		}
	}
	return out
}

// splitCandidates returns the plausible request lines in pasted text:
// non-empty lines of real length, capped. Short connective lines and bare
// separators are dropped before the model ever sees them.
func splitCandidates(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 8 || isSeparator(line) {
			continue
		}
		out = append(out, line)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func isSeparator(line string) bool {
	for _, r := range line {
		switch r {
		case '-', '=', '*', '_', '|', '+', '~', '#', ' ':
		default:
			return false
		}
	}
	return true
}

const docAnswerPrompt = `You answer questions using only the attached documents. Quote or
reference the document you rely on. If the documents do not contain the answer, say so
plainly instead of guessing.`

// AnswerFromDocuments answers a question grounded in the session's
// attached documents.
func (in *Intake) AnswerFromDocuments(ctx context.Context, question string, docs []domain.SessionDocument) (string, error) {
	if len(docs) == 0 {
		return "", domain.NewSubSystemError("specialist", "Intake.AnswerFromDocuments",
			domain.ErrInvalidInput, "no documents attached")
	}
	var sb strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", doc.Name, truncate(doc.Text, 6000))
	}
	fmt.Fprintf(&sb, "Question: %s", question)

	resp, err := in.llm.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: docAnswerPrompt},
			{Role: domain.RoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return "", domain.WrapOp("Intake.AnswerFromDocuments", err)
	}
	return resp.Message.Content, nil
}

// RequestSummary is the one-line delta description for a filed request.
func RequestSummary(req *domain.CustomerRequest) string {
	return fmt.Sprintf("logged request %s [%s/%s] %s",
		req.ID, req.Classification, req.Priority, truncate(req.Description, 80))
}
