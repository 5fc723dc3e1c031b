package memory

import (
	"context"
	"encoding/json"
	"log/slog"

	"adjutant/internal/domain"
)

// Recorder feeds the archive from the event bus: assistant replies from
// cycle.responded, committed deltas from cycle.persisted, and detected
// decisions from decision.logged. Append failures are logged, never
// propagated — a broken archive must not break a cycle.
type Recorder struct {
	archive domain.Archive
	logger  *slog.Logger
	unsubs  []func()
}

// NewRecorder subscribes to the bus and starts archiving. Call Close to
// unsubscribe.
func NewRecorder(bus domain.EventBus, archive domain.Archive, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{archive: archive, logger: logger}
	r.unsubs = append(r.unsubs,
		bus.Subscribe(domain.EventCycleResponded, r.onResponded),
		bus.Subscribe(domain.EventCyclePersisted, r.onPersisted),
		bus.Subscribe(domain.EventDecisionLogged, r.onDecision),
	)
	return r
}

// Close detaches the recorder from the bus. The archive itself is closed
// by its owner.
func (r *Recorder) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Recorder) onResponded(ctx context.Context, evt domain.Event) {
	var payload struct {
		Error   bool   `json:"error"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		r.logger.Warn("archive recorder: bad responded payload", "error", err)
		return
	}
	if payload.Error || payload.Content == "" {
		return
	}
	r.append(ctx, domain.ArchiveEntry{
		SessionID: evt.SessionID,
		Kind:      "message",
		Content:   payload.Content,
		CreatedAt: evt.Timestamp,
	})
}

func (r *Recorder) onPersisted(ctx context.Context, evt domain.Event) {
	var payload struct {
		Committed []string `json:"committed"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		r.logger.Warn("archive recorder: bad persisted payload", "error", err)
		return
	}
	for _, desc := range payload.Committed {
		r.append(ctx, domain.ArchiveEntry{
			SessionID: evt.SessionID,
			Kind:      "delta",
			Content:   desc,
			CreatedAt: evt.Timestamp,
		})
	}
}

func (r *Recorder) onDecision(ctx context.Context, evt domain.Event) {
	var d domain.SessionDecision
	if err := json.Unmarshal(evt.Payload, &d); err != nil {
		r.logger.Warn("archive recorder: bad decision payload", "error", err)
		return
	}
	if d.Content == "" {
		return
	}
	r.append(ctx, domain.ArchiveEntry{
		SessionID: evt.SessionID,
		Kind:      "decision",
		Content:   d.Content,
		CreatedAt: d.MadeAt,
	})
}

func (r *Recorder) append(ctx context.Context, entry domain.ArchiveEntry) {
	if _, err := r.archive.Append(ctx, entry); err != nil {
		r.logger.Warn("archive append failed",
			"session", entry.SessionID, "kind", entry.Kind, "error", err)
	}
}
