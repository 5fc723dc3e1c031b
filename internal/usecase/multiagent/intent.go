package multiagent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"adjutant/internal/domain"
)

// Classifier selects the best-fitting agents for a message. Implementations
// return at most two keys, or an empty slice when the message has no
// agent-specific nuance (pure record queries fall through to the direct
// answer path). A returned error triggers the conservative full
// round-table fallback.
type Classifier interface {
	Classify(ctx context.Context, message string, candidates []domain.AgentDescriptor) ([]string, error)
}

// builtinAliases maps mention shorthands to canonical agent keys. Config
// may extend this set, never shrink it.
var builtinAliases = map[string]string{
	"challenge": "challenger",
	"devil":     "challenger",
	"redteam":   "challenger",
	"write":     "writer",
	"draft":     "writer",
	"research":  "researcher",
	"fac":       "facilitator",
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// logPrefixes mark a message as an explicit logging instruction for intake.
var logPrefixes = []string{"log this:", "log:", "add request:", "add this:"}

// openEndedPhrases trigger a full round-table over all active agents.
var openEndedPhrases = []string{
	"what does everyone think",
	"what do you all think",
	"what do we think",
	"everyone's take",
	"share your thoughts",
	"thoughts from the team",
	"weigh in",
	"round table",
	"round-table",
	"let's discuss",
	"all of you",
}

// directQueries are read-only questions answered straight from the record
// store. The rule name distinguishes which store query the orchestrator
// runs.
var directQueries = []struct {
	re   *regexp.Regexp
	rule string
}{
	{regexp.MustCompile(`(?i)\b(list|show|how many)\b.*\brequests?\b`), "direct.requests"},
	{regexp.MustCompile(`(?i)\bp[0-3]\b.*\brequests?\b`), "direct.requests"},
	{regexp.MustCompile(`(?i)\brequests?\b.*\bbacklog\b`), "direct.requests"},
	{regexp.MustCompile(`(?i)\b(show|what's|what is|where's|where is)\b.*\bplan\b`), "direct.plan"},
	{regexp.MustCompile(`(?i)\btoday'?s plan\b`), "direct.plan"},
	{regexp.MustCompile(`(?i)\b(what|which|show|list|any)\b.*\binsights?\b`), "direct.insights"},
}

// Router is the prioritized decision table that maps one inbound message
// to a dispatch decision. Rules are evaluated in order; the first match
// wins. Ambiguity is never resolved silently: the final rule asks the
// caller to clarify.
type Router struct {
	registry   *Registry
	classifier Classifier
	timeout    time.Duration
	aliases    map[string]string
	log        *slog.Logger
}

var _ domain.IntentRouter = (*Router)(nil)

// RouterOptions tune the router. Zero values fall back to defaults.
type RouterOptions struct {
	// ClassifierTimeout bounds the classification call. Default 10s.
	ClassifierTimeout time.Duration
	// ExtraAliases maps canonical agent keys to additional mention
	// shorthands, merged over the built-in alias set.
	ExtraAliases map[string][]string
}

// NewRouter builds a Router over the given registry. classifier may be nil;
// the table then skips straight from the phrase heuristics to the direct
// query patterns.
func NewRouter(registry *Registry, classifier Classifier, opts RouterOptions, log *slog.Logger) *Router {
	if log == nil {
		log = discardLogger()
	}
	timeout := opts.ClassifierTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	aliases := make(map[string]string, len(builtinAliases))
	for alias, key := range builtinAliases {
		aliases[alias] = key
	}
	for key, extra := range opts.ExtraAliases {
		for _, alias := range extra {
			aliases[strings.ToLower(alias)] = key
		}
	}
	return &Router{
		registry:   registry,
		classifier: classifier,
		timeout:    timeout,
		aliases:    aliases,
		log:        log,
	}
}

// Route evaluates the decision table for one message.
func (r *Router) Route(ctx context.Context, in domain.RouteInput) (*domain.DispatchDecision, error) {
	message := strings.TrimSpace(in.Message)
	lower := strings.ToLower(message)
	active := make(map[string]bool, len(in.ActiveAgents))
	for _, key := range in.ActiveAgents {
		active[key] = true
	}

	// 1. Explicit mentions always win.
	if d := r.routeMentions(message, active); d != nil {
		return d, nil
	}

	// 2. Logging phrasing and raw data drops go to intake.
	if d := r.routeLogging(message, lower); d != nil {
		return d, nil
	}

	// 3. Broad solicitations convene everyone.
	if d := r.routeOpenEnded(lower, in.ActiveAgents); d != nil {
		return d, nil
	}

	// 4. Ask the classifier for the best one or two agents. An empty
	// answer means "no agent-specific nuance" and falls through.
	if d := r.routeClassified(ctx, message, in.ActiveAgents, active); d != nil {
		return d, nil
	}

	// 5. Read-only queries are answered from the store directly.
	if d := r.routeDirect(lower, in.HasDocuments, message); d != nil {
		return d, nil
	}

	// 6. Never guess.
	return r.clarify(in.ActiveAgents), nil
}

func (r *Router) routeMentions(message string, active map[string]bool) *domain.DispatchDecision {
	matches := mentionPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}

	var keys []string
	var inactive []string
	seen := make(map[string]bool)
	for _, m := range matches {
		token := strings.ToLower(m[1])
		key := token
		if canonical, ok := r.aliases[token]; ok {
			key = canonical
		}
		if !r.registry.Has(key) {
			// Not an agent mention; likely an email address or handle.
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		if !active[key] {
			inactive = append(inactive, key)
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 && len(inactive) == 0 {
		return nil
	}
	if len(keys) == 0 {
		return &domain.DispatchDecision{
			Mode:   domain.ModeClarify,
			Rule:   "mention.inactive",
			Notice: inactiveNotice(inactive),
		}
	}

	d := &domain.DispatchDecision{
		Mode:      domain.ModeFocused,
		AgentKeys: keys,
		Rule:      "mention",
	}
	if len(keys) > 1 {
		d.Mode = domain.ModeMini
	}
	if len(inactive) > 0 {
		d.Notice = inactiveNotice(inactive)
	}
	return d
}

func inactiveNotice(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = "@" + k
	}
	return fmt.Sprintf("%s is not active in this session; activate the agent first or mention an active one.",
		strings.Join(quoted, ", "))
}

func (r *Router) routeLogging(message, lower string) *domain.DispatchDecision {
	if !r.registry.Has("intake") {
		return nil
	}
	for _, prefix := range logPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return &domain.DispatchDecision{
				Mode:      domain.ModeFocused,
				AgentKeys: []string{"intake"},
				Rule:      "log-phrase",
			}
		}
	}
	if LooksLikeRawDrop(message) {
		return &domain.DispatchDecision{
			Mode:      domain.ModeFocused,
			AgentKeys: []string{"intake"},
			Rule:      "raw-drop",
		}
	}
	return nil
}

// LooksLikeRawDrop detects pasted tabular or bulk text: several lines that
// carry tab- or comma-separated fields rather than prose.
func LooksLikeRawDrop(message string) bool {
	lines := strings.Split(message, "\n")
	var filled, delimited int
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		filled++
		if strings.Contains(line, "\t") || strings.Count(line, ",") >= 2 || strings.Count(line, "|") >= 2 {
			delimited++
		}
	}
	return filled >= 4 && delimited >= 3
}

func (r *Router) routeOpenEnded(lower string, activeKeys []string) *domain.DispatchDecision {
	matched := false
	for _, phrase := range openEndedPhrases {
		if strings.Contains(lower, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	return r.roundTable(activeKeys, "open-ended")
}

func (r *Router) routeClassified(ctx context.Context, message string, activeKeys []string, active map[string]bool) *domain.DispatchDecision {
	if r.classifier == nil {
		return nil
	}
	candidates := make([]domain.AgentDescriptor, 0, len(activeKeys))
	for _, d := range r.registry.List() {
		if active[d.Key] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	keys, err := r.classifier.Classify(cctx, message, candidates)
	if err != nil {
		// Better to convene everyone than to guess one agent wrong.
		r.log.Warn("intent classification failed, falling back to round-table", "error", err)
		return r.roundTable(activeKeys, "classifier.error")
	}

	var selected []string
	seen := make(map[string]bool)
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || seen[key] || !active[key] {
			continue
		}
		seen[key] = true
		selected = append(selected, key)
	}

	switch {
	case len(selected) == 0:
		return nil
	case len(selected) == 1:
		return &domain.DispatchDecision{
			Mode:      domain.ModeFocused,
			AgentKeys: selected,
			Rule:      "classifier",
		}
	case len(selected) == 2:
		return &domain.DispatchDecision{
			Mode:      domain.ModeMini,
			AgentKeys: selected,
			Rule:      "classifier",
		}
	default:
		return r.roundTable(activeKeys, "classifier.broad")
	}
}

func (r *Router) routeDirect(lower string, hasDocuments bool, message string) *domain.DispatchDecision {
	for _, q := range directQueries {
		if q.re.MatchString(lower) {
			return &domain.DispatchDecision{Mode: domain.ModeDirect, Rule: q.rule}
		}
	}
	if hasDocuments && strings.HasSuffix(strings.TrimSpace(message), "?") {
		return &domain.DispatchDecision{Mode: domain.ModeDirect, Rule: "direct.documents"}
	}
	return nil
}

func (r *Router) roundTable(activeKeys []string, rule string) *domain.DispatchDecision {
	if len(activeKeys) == 0 {
		return &domain.DispatchDecision{
			Mode:   domain.ModeClarify,
			Rule:   rule,
			Notice: "No agents are active in this session, so there is no one to convene.",
		}
	}
	return &domain.DispatchDecision{
		Mode:      domain.ModeRoundTable,
		AgentKeys: append([]string(nil), activeKeys...),
		Rule:      rule,
	}
}

func (r *Router) clarify(activeKeys []string) *domain.DispatchDecision {
	options := make([]string, 0, len(activeKeys))
	for _, key := range activeKeys {
		options = append(options, "@"+key)
	}
	notice := "I'm not sure who should take this."
	if len(options) > 0 {
		notice += " Mention an agent directly (" + strings.Join(options, ", ") + "),"
	} else {
		notice += " Mention an agent directly,"
	}
	notice += " ask for a round table, or start with \"log this:\" to file it as a request."
	return &domain.DispatchDecision{
		Mode:   domain.ModeClarify,
		Rule:   "clarify",
		Notice: notice,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
