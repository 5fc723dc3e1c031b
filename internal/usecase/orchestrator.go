package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"adjutant/internal/domain"
	"adjutant/internal/usecase/multiagent"
	"adjutant/internal/usecase/records"
	"adjutant/internal/usecase/specialist"
)

// Orchestrator runs the message-handling cycle: Received → Routed →
// Executing → Merging → Persisting → Responded. Direct answers and
// clarifications skip the Persisting phase; everything else funnels its
// record deltas through the write-authorization check and the store
// inside one serialized Persisting phase per session.
type Orchestrator struct {
	store     *records.Store
	registry  *multiagent.Registry
	router    domain.IntentRouter
	table     *multiagent.RoundTable
	sessions  *SessionManager
	locker    *SessionLocker
	scanner   *SecretScanner
	builder   *ContextBuilder
	fac       *specialist.Facilitator
	intake    *specialist.Intake
	generator *OutputGenerator
	bus       domain.EventBus
	log       *slog.Logger

	maxMessages int
	facInterval int
}

// OrchestratorOptions tune the cycle. Zero values fall back to defaults.
type OrchestratorOptions struct {
	// MaxSessionMessages bounds stored history per session. Default 200.
	MaxSessionMessages int
	// FacilitatorInterval is assistant turns between standing summaries.
	// Default 6.
	FacilitatorInterval int
}

// NewOrchestrator wires the cycle. scanner, builder, fac, intake,
// generator and bus may be nil; the corresponding steps are skipped.
func NewOrchestrator(
	store *records.Store,
	registry *multiagent.Registry,
	router domain.IntentRouter,
	table *multiagent.RoundTable,
	sessions *SessionManager,
	scanner *SecretScanner,
	builder *ContextBuilder,
	fac *specialist.Facilitator,
	intake *specialist.Intake,
	generator *OutputGenerator,
	bus domain.EventBus,
	opts OrchestratorOptions,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	maxMessages := opts.MaxSessionMessages
	if maxMessages <= 0 {
		maxMessages = 200
	}
	interval := opts.FacilitatorInterval
	if interval <= 0 {
		interval = specialist.DefaultSummaryInterval
	}
	return &Orchestrator{
		store:       store,
		registry:    registry,
		router:      router,
		table:       table,
		sessions:    sessions,
		locker:      NewSessionLocker(),
		scanner:     scanner,
		builder:     builder,
		fac:         fac,
		intake:      intake,
		generator:   generator,
		bus:         bus,
		log:         log,
		maxMessages: maxMessages,
		facInterval: interval,
	}
}

// HandleMessage runs one full cycle for an inbound message. The returned
// outbound message is always non-nil on a nil error; cycle-internal
// agent failures surface as labeled markers inside it, not as errors.
func (o *Orchestrator) HandleMessage(ctx context.Context, in domain.InboundMessage) (*domain.OutboundMessage, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Documents) == 0 {
		return nil, domain.NewSubSystemError("orchestrator", "HandleMessage", domain.ErrInvalidInput, "empty message")
	}

	unlock, err := o.locker.Lock(ctx, in.SessionID)
	if err != nil {
		return nil, domain.WrapOp("HandleMessage", err)
	}
	defer unlock()

	// Received.
	o.publish(domain.EventCycleReceived, in.SessionID, map[string]string{"channel": in.ChannelName})

	content := in.Content
	if o.scanner != nil {
		cleaned, blocked, matches := o.scanner.Apply(content)
		if blocked {
			o.log.Warn("message blocked by secret scanner", "session", in.SessionID, "matches", len(matches))
			return o.respond(in.SessionID, "That message contains a private key block, so I won't process or store it. Remove the secret and resend.", true), nil
		}
		if len(matches) > 0 {
			o.log.Info("secrets redacted from inbound message", "session", in.SessionID, "matches", len(matches))
		}
		content = cleaned
	}

	session := o.sessions.GetOrCreate(in.SessionID)
	for _, doc := range in.Documents {
		session.AttachDocument(doc)
	}

	var parts []string
	if intro := o.facilitatorIntro(session); intro != "" {
		parts = append(parts, intro)
	}

	// The writer path: "generate a PRD/summary/..." bypasses routing.
	if t, ok := DetectOutputRequest(content); ok && o.generator != nil {
		return o.handleOutputRequest(ctx, session, content, t, parts)
	}

	decision, err := o.route(ctx, session, content)
	if err != nil {
		return nil, err
	}
	o.publish(domain.EventCycleRouted, session.ID, map[string]any{
		"mode": decision.Mode, "rule": decision.Rule, "agents": decision.AgentKeys,
	})

	switch decision.Mode {
	case domain.ModeClarify:
		parts = append(parts, decision.Notice)
		o.appendTurn(session, content, domain.Message{Role: domain.RoleAssistant, Content: decision.Notice})
		o.finishCycle(session)
		return o.respond(session.ID, strings.Join(parts, "\n\n"), false), nil

	case domain.ModeDirect:
		answer, err := o.directAnswer(ctx, session, decision.Rule, content)
		if err != nil {
			return nil, err
		}
		parts = append(parts, answer)
		o.appendTurn(session, content, domain.Message{Role: domain.RoleAssistant, Content: answer})
		o.finishCycle(session)
		return o.respond(session.ID, strings.Join(parts, "\n\n"), false), nil
	}

	if decision.Notice != "" {
		parts = append(parts, decision.Notice)
	}

	// Executing: all selected agents in parallel against one snapshot.
	calls, err := o.buildCalls(session, content, decision)
	if err != nil {
		return nil, err
	}
	outputs := o.table.Run(ctx, calls)

	// Merging.
	outputs = facilitatorFirst(outputs)
	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: content})
	merged, assistantTurns := o.merge(session, outputs, decision)
	parts = append(parts, merged...)

	// Persisting.
	committed, notPersisted := o.persistDeltas(session.ID, outputs)
	if len(committed) > 0 {
		parts = append(parts, "Recorded:\n- "+strings.Join(committed, "\n- "))
	}
	if len(notPersisted) > 0 {
		parts = append(parts, "⚠ Not recorded:\n- "+strings.Join(notPersisted, "\n- "))
	}
	o.publish(domain.EventCyclePersisted, session.ID, map[string]any{
		"deltas": len(committed), "committed": committed, "rejected": len(notPersisted),
	})

	if summary := o.facilitatorSummary(ctx, session, assistantTurns); summary != "" {
		parts = append(parts, summary)
	}

	o.finishCycle(session)
	return o.respond(session.ID, strings.Join(parts, "\n\n"), false), nil
}

// route applies the session's standing discussion preference before
// falling through to the per-message router.
func (o *Orchestrator) route(ctx context.Context, session *Session, content string) (*domain.DispatchDecision, error) {
	switch session.Discussion {
	case domain.DiscussionFocused:
		if session.FocusedAgent != "" && o.registry.Has(session.FocusedAgent) {
			return &domain.DispatchDecision{
				Mode:      domain.ModeFocused,
				AgentKeys: []string{session.FocusedAgent},
				Rule:      "session.focused",
			}, nil
		}
	case domain.DiscussionRoundTable:
		if agents := session.Agents(); len(agents) > 0 {
			return &domain.DispatchDecision{
				Mode:      domain.ModeRoundTable,
				AgentKeys: agents,
				Rule:      "session.round_table",
			}, nil
		}
	}

	decision, err := o.router.Route(ctx, domain.RouteInput{
		Message:      content,
		ActiveAgents: session.Agents(),
		HasDocuments: len(session.Docs()) > 0,
		SessionID:    session.ID,
	})
	if err != nil {
		return nil, domain.WrapOp("route", err)
	}
	return decision, nil
}

// buildCalls assembles the immutable per-agent inputs: one snapshot, one
// bounded history, shared across the whole dispatch.
func (o *Orchestrator) buildCalls(session *Session, content string, decision *domain.DispatchDecision) ([]domain.AgentCall, error) {
	snap := o.store.Snapshot()
	history := session.Messages()
	if o.builder != nil {
		history = o.builder.BoundHistory(history)
	}
	docs := session.Docs()
	concise := decision.Mode == domain.ModeRoundTable

	roster := make([]domain.AgentDescriptor, 0, len(decision.AgentKeys))
	for _, key := range decision.AgentKeys {
		d, err := o.registry.Resolve(key)
		if err != nil {
			return nil, err
		}
		roster = append(roster, *d)
	}

	calls := make([]domain.AgentCall, len(roster))
	for i, d := range roster {
		calls[i] = domain.AgentCall{
			Descriptor: d,
			Message:    content,
			History:    history,
			Roster:     roster,
			Snapshot:   snap,
			Documents:  docs,
			Concise:    concise,
			SessionID:  session.ID,
		}
	}
	return calls, nil
}

// merge assembles the labeled response blocks in dispatch order, appends
// assistant messages to the session, and runs decision detection. It
// returns the blocks and the number of successful assistant turns.
func (o *Orchestrator) merge(session *Session, outputs []*domain.AgentOutput, decision *domain.DispatchDecision) ([]string, int) {
	var blocks []string
	turns := 0
	labelled := len(outputs) > 1

	for _, out := range outputs {
		if out.Failed() {
			blocks = append(blocks, fmt.Sprintf("⚠ %s did not answer: %v", out.Label, out.Err))
			continue
		}
		text := out.Text
		if labelled {
			text = fmt.Sprintf("**%s**\n%s", out.Label, out.Text)
		}
		blocks = append(blocks, text)
		session.AddMessage(domain.Message{
			Role:    domain.RoleAssistant,
			Name:    out.AgentKey,
			Content: out.Text,
		})
		turns++

		if d, ok := DetectDecision(out.AgentKey, out.Text); ok {
			session.AddDecision(d)
			o.publish(domain.EventDecisionLogged, session.ID, d)
		}
	}
	return blocks, turns
}

// persistDeltas validates every proposed delta against the registry's
// write authorization and applies the survivors through the store. An
// unauthorized delta is an integrity violation: rejected, logged, and
// published distinctly from agent failure. Every delta that does not
// reach disk — rejected or failed to apply — comes back as a labeled
// notice so the response never claims more than the store holds.
func (o *Orchestrator) persistDeltas(sessionID string, outputs []*domain.AgentOutput) (committed, notPersisted []string) {
	for _, out := range outputs {
		if out.Failed() {
			continue
		}
		for _, delta := range out.Deltas {
			if err := o.registry.AuthorizeDelta(out.AgentKey, delta); err != nil {
				o.log.Error("integrity violation: unauthorized record delta rejected",
					"agent", out.AgentKey, "kind", delta.Kind, "error", err)
				o.publish(domain.EventDeltaRejected, sessionID, map[string]string{
					"agent": out.AgentKey, "kind": string(delta.Kind), "error": err.Error(),
				})
				notPersisted = append(notPersisted,
					fmt.Sprintf("%s is not authorized to write %s records; the change was discarded", out.AgentKey, delta.Kind))
				continue
			}
			desc, err := o.applyDelta(delta)
			if err != nil {
				o.log.Error("delta application failed",
					"agent", out.AgentKey, "kind", delta.Kind, "error", err)
				notPersisted = append(notPersisted,
					fmt.Sprintf("%s's %s change was not saved: %v", out.AgentKey, delta.Kind, err))
				continue
			}
			committed = append(committed, desc)
		}
	}
	return committed, notPersisted
}

// applyDelta routes one authorized delta to the store operation that
// owns its invariants. Day plans always go through ApplyPlan so the
// surfacing and promotion side effects fire.
func (o *Orchestrator) applyDelta(delta domain.RecordDelta) (string, error) {
	if delta.Op == domain.DeltaLink {
		if err := o.store.Link(delta.RequestID, delta.InsightID); err != nil {
			return "", err
		}
		return delta.Summary, nil
	}

	switch rec := delta.Record.(type) {
	case *domain.CustomerRequest:
		if _, err := o.store.SaveRequest(rec); err != nil {
			return "", err
		}
	case *domain.DayPlan:
		applied, err := o.store.ApplyPlan(rec)
		if err != nil {
			return "", err
		}
		if n := len(applied.SurfacedRequestIDs); n > 0 {
			return fmt.Sprintf("%s; surfaced %d request(s)", delta.Summary, n), nil
		}
	case *domain.StrategicInsight:
		if _, err := o.store.SaveInsight(rec); err != nil {
			return "", err
		}
	case *domain.AgentProfile:
		if _, err := o.store.SaveProfile(rec); err != nil {
			return "", err
		}
	default:
		return "", domain.NewSubSystemError("orchestrator", "applyDelta", domain.ErrInvalidInput,
			fmt.Sprintf("delta carries unsupported record type %T", delta.Record))
	}
	return delta.Summary, nil
}

// --- direct answers ---

var priorityPattern = regexp.MustCompile(`(?i)\bP([0-3])\b`)

// directAnswer serves read-only queries straight from the store, with no
// agent delegation and no Persisting phase.
func (o *Orchestrator) directAnswer(ctx context.Context, session *Session, rule, content string) (string, error) {
	switch rule {
	case "direct.requests":
		filter := records.RequestFilter{Limit: 20}
		if m := priorityPattern.FindStringSubmatch(content); m != nil {
			filter.Priority = domain.RequestPriority("P" + m[1])
		}
		reqs := o.store.ListRequests(filter)
		if len(reqs) == 0 {
			return "No matching requests on file.", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d request(s):\n", len(reqs))
		for _, r := range reqs {
			fmt.Fprintf(&sb, "- %s [%s/%s/%s] %s\n", r.ID, r.Priority, r.Classification, r.Status, r.Description)
		}
		return strings.TrimRight(sb.String(), "\n"), nil

	case "direct.plan":
		plan := o.store.LatestPlan()
		if plan == nil {
			return "No day plan yet. Paste a morning briefing and ask the planner to build one.", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Plan for %s:\n", plan.Date)
		for _, item := range plan.FocusItems {
			check := " "
			if item.Done {
				check = "x"
			}
			fmt.Fprintf(&sb, "%d. [%s] %s\n", item.Rank, check, item.Title)
		}
		if plan.ContextSummary != "" {
			fmt.Fprintf(&sb, "\n%s", plan.ContextSummary)
		}
		return strings.TrimRight(sb.String(), "\n"), nil

	case "direct.insights":
		insights := o.store.ListInsights(records.InsightFilter{Limit: 10})
		if len(insights) == 0 {
			return "No insights recorded yet. Ask the analyst to look for trends, gaps, or risks.", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d insight(s), newest first:\n", len(insights))
		for _, in := range insights {
			planned := ""
			if in.InDayPlan {
				planned = " (in a day plan)"
			}
			fmt.Fprintf(&sb, "- %s [%s/%s]%s %s\n", in.ID, in.InsightType, in.Confidence, planned, in.Title)
		}
		return strings.TrimRight(sb.String(), "\n"), nil

	case "direct.documents":
		if o.intake == nil {
			return "", domain.NewSubSystemError("orchestrator", "directAnswer", domain.ErrInvalidInput,
				"document answering is not wired")
		}
		return o.intake.AnswerFromDocuments(ctx, content, session.Docs())

	default:
		return "", domain.NewSubSystemError("orchestrator", "directAnswer", domain.ErrInvalidInput,
			fmt.Sprintf("unknown direct rule %q", rule))
	}
}

// --- writer path ---

func (o *Orchestrator) handleOutputRequest(ctx context.Context, session *Session, content string, t domain.OutputType, parts []string) (*domain.OutboundMessage, error) {
	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: content})
	out, err := o.generator.Generate(ctx, t, session.Messages())
	if err != nil {
		return nil, err
	}
	session.AddOutput(*out)
	session.AddMessage(domain.Message{Role: domain.RoleAssistant, Name: "writer", Content: out.Content})
	o.publish(domain.EventOutputGenerated, session.ID, map[string]string{
		"id": out.ID, "type": string(out.OutputType), "title": out.Title,
	})
	parts = append(parts, out.Content)
	o.finishCycle(session)
	return o.respond(session.ID, strings.Join(parts, "\n\n"), false), nil
}

// --- facilitator cadence ---

// facilitatorIntro returns the intro once per facilitated session.
func (o *Orchestrator) facilitatorIntro(session *Session) string {
	if o.fac == nil || !session.Facilitator.Enabled || session.Facilitator.IntroSent {
		return ""
	}
	session.Facilitator.IntroSent = true
	return o.fac.Intro(session.Agents())
}

// facilitatorSummary advances the turn counter and produces a standing
// summary once the interval elapses. Summary failures are logged and
// swallowed: a cycle never fails because the recap did.
func (o *Orchestrator) facilitatorSummary(ctx context.Context, session *Session, assistantTurns int) string {
	if o.fac == nil || !session.Facilitator.Enabled || assistantTurns == 0 {
		return ""
	}
	session.Facilitator.TurnsSinceSummary += assistantTurns
	interval := session.Facilitator.Interval
	if interval <= 0 {
		interval = o.facInterval
	}
	if session.Facilitator.TurnsSinceSummary < interval {
		return ""
	}

	summary, err := o.fac.Summarize(ctx, session.Messages())
	if err != nil {
		o.log.Warn("facilitator summary failed", "session", session.ID, "error", err)
		return ""
	}
	session.Facilitator.TurnsSinceSummary = 0
	session.AddMessage(domain.Message{Role: domain.RoleAssistant, Name: "facilitator", Content: summary})
	return "🧭 Where we stand: " + summary
}

// --- plumbing ---

// appendTurn records a user/assistant exchange that bypassed agent
// execution (direct answers, clarifications).
func (o *Orchestrator) appendTurn(session *Session, userContent string, reply domain.Message) {
	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: userContent})
	session.AddMessage(reply)
}

// finishCycle bounds and saves the session. Save failures are logged,
// not returned: the response already reflects committed record state.
func (o *Orchestrator) finishCycle(session *Session) {
	session.Truncate(o.maxMessages)
	if err := o.sessions.Save(session.ID); err != nil {
		o.log.Error("session save failed", "session", session.ID, "error", err)
	}
}

func (o *Orchestrator) respond(sessionID, content string, isError bool) *domain.OutboundMessage {
	o.publish(domain.EventCycleResponded, sessionID, map[string]any{
		"error": isError, "content": content,
	})
	return &domain.OutboundMessage{SessionID: sessionID, Content: content, IsError: isError}
}

// facilitatorFirst moves the builtin facilitator's slot to the front of
// the merged order when present.
func facilitatorFirst(outputs []*domain.AgentOutput) []*domain.AgentOutput {
	for i, out := range outputs {
		if out.AgentKey == "facilitator" && i > 0 {
			reordered := make([]*domain.AgentOutput, 0, len(outputs))
			reordered = append(reordered, out)
			reordered = append(reordered, outputs[:i]...)
			reordered = append(reordered, outputs[i+1:]...)
			return reordered
		}
	}
	return outputs
}

func (o *Orchestrator) publish(t domain.EventType, sessionID string, payload any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(domain.NewEvent(t, sessionID, payload))
}
