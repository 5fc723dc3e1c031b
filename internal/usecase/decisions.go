package usecase

import (
	"strings"
	"time"

	"adjutant/internal/domain"
)

// Decision detection scans agent output for committed choices and logs
// them on the session. Short remarks never qualify; longer passages need
// cue evidence: one strong cue, or two weak ones.
const decisionMinLength = 120

var strongDecisionCues = []string{
	"we decided",
	"we've decided",
	"decision:",
	"the decision is",
	"we will go with",
	"we are going with",
	"we're going with",
	"agreed to",
	"settled on",
	"final call",
}

var weakDecisionCues = []string{
	"we should",
	"let's go",
	"recommend",
	"the best option",
	"we will",
	"we'll",
	"going forward",
	"next step is",
}

// DetectDecision reports whether the text reads like a committed
// decision, and if so returns it as a SessionDecision. The agent key
// lands in the context field so the log stays attributable.
func DetectDecision(agentKey, text string) (domain.SessionDecision, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < decisionMinLength {
		return domain.SessionDecision{}, false
	}
	lower := strings.ToLower(trimmed)

	score := 0
	for _, cue := range strongDecisionCues {
		if strings.Contains(lower, cue) {
			score += 2
			break
		}
	}
	for _, cue := range weakDecisionCues {
		if strings.Contains(lower, cue) {
			score++
			if score >= 2 {
				break
			}
		}
	}
	if score < 2 {
		return domain.SessionDecision{}, false
	}

	return domain.SessionDecision{
		ID:      domain.NewRecordID(8),
		Content: decisionExcerpt(trimmed),
		Context: "detected in output from " + agentKey,
		MadeAt:  time.Now().UTC(),
	}, true
}

// decisionExcerpt keeps the first sentences up to a readable cap.
func decisionExcerpt(text string) string {
	const limit = 500
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > limit/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}
