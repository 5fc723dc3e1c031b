package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"adjutant/internal/domain"
	"adjutant/internal/usecase"
	"adjutant/internal/usecase/records"
)

// ChatHandler runs one engine cycle for an inbound message. Satisfied by
// *usecase.Orchestrator.
type ChatHandler interface {
	HandleMessage(ctx context.Context, in domain.InboundMessage) (*domain.OutboundMessage, error)
}

// HandlerDeps holds the dependencies the RPC handlers need. Archive may be
// nil; the archive.* methods are then not registered.
type HandlerDeps struct {
	Chat     ChatHandler
	Store    *records.Store
	Sessions *usecase.SessionManager
	Archive  domain.Archive
	Logger   *slog.Logger
}

// RegisterDefaultHandlers registers all built-in RPC methods on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s.RegisterHandler("chat.send", chatSendHandler(deps))
	s.RegisterHandler("records.requests.list", requestsListHandler(deps))
	s.RegisterHandler("records.requests.get", requestsGetHandler(deps))
	s.RegisterHandler("records.plan.get", planGetHandler(deps))
	s.RegisterHandler("records.insights.list", insightsListHandler(deps))
	s.RegisterHandler("records.snapshot", snapshotHandler(deps))
	s.RegisterHandler("session.list", sessionListHandler(deps))
	s.RegisterHandler("session.history", sessionHistoryHandler(deps))
	s.RegisterHandler("session.delete", sessionDeleteHandler(deps))

	if deps.Archive != nil {
		s.RegisterHandler("archive.search", archiveSearchHandler(deps))
		s.RegisterHandler("archive.recent", archiveRecentHandler(deps))
	}
}

// decode unmarshals an RPC payload, mapping failures to the invalid-payload
// sentinel so clients get a stable error code.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRPCInvalidPayload, err)
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

// --- chat ---

func chatSendHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		SessionID string `json:"session_id"`
		Content   string `json:"content"`
	}
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.SessionID) == "" {
			return nil, fmt.Errorf("%w: session_id required", domain.ErrRPCInvalidPayload)
		}

		out, err := deps.Chat.HandleMessage(ctx, domain.InboundMessage{
			SessionID:   p.SessionID,
			Content:     p.Content,
			ChannelName: "gateway",
			SenderName:  client.Name,
		})
		if err != nil {
			return nil, err
		}
		return encode(map[string]any{
			"session_id": out.SessionID,
			"content":    out.Content,
			"is_error":   out.IsError,
		})
	}
}

// --- records ---

func requestsListHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		Priority       string `json:"priority"`
		Classification string `json:"classification"`
		Status         string `json:"status"`
		Tag            string `json:"tag"`
		StaleDays      int    `json:"stale_days"`
		Limit          int    `json:"limit"`
	}
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		matches := deps.Store.ListRequests(records.RequestFilter{
			Priority:       domain.RequestPriority(p.Priority),
			Classification: domain.RequestClassification(p.Classification),
			Status:         domain.RequestStatus(p.Status),
			Tag:            p.Tag,
			StaleDays:      p.StaleDays,
			Limit:          p.Limit,
		})
		return encode(map[string]any{"count": len(matches), "requests": matches})
	}
}

func requestsGetHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		ID string `json:"id"`
	}
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: id required", domain.ErrRPCInvalidPayload)
		}
		r, err := deps.Store.GetRequest(p.ID)
		if err != nil {
			return nil, err
		}
		return encode(r)
	}
}

func planGetHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		Date string `json:"date"`
	}
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.Date != "" {
			plan, err := deps.Store.PlanForDate(p.Date)
			if err != nil {
				return nil, err
			}
			return encode(plan)
		}
		plan := deps.Store.LatestPlan()
		if plan == nil {
			return encode(nil)
		}
		return encode(plan)
	}
}

func insightsListHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		Type          string `json:"type"`
		Confidence    string `json:"confidence"`
		OnlyUnplanned bool   `json:"only_unplanned"`
		Limit         int    `json:"limit"`
	}
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		matches := deps.Store.ListInsights(records.InsightFilter{
			Type:          domain.InsightType(p.Type),
			Confidence:    domain.InsightConfidence(p.Confidence),
			OnlyUnplanned: p.OnlyUnplanned,
			Limit:         p.Limit,
		})
		return encode(map[string]any{"count": len(matches), "insights": matches})
	}
}

func snapshotHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return encode(deps.Store.Snapshot())
	}
}

// --- sessions ---

func sessionListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return encode(map[string]any{"sessions": deps.Sessions.List()})
	}
}

func sessionHistoryHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		SessionID string `json:"session_id"`
		Limit     int    `json:"limit"`
	}
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("%w: session_id required", domain.ErrRPCInvalidPayload)
		}
		session, err := deps.Sessions.Get(p.SessionID)
		if err != nil {
			return nil, err
		}
		msgs := session.Messages()
		if p.Limit > 0 && len(msgs) > p.Limit {
			msgs = msgs[len(msgs)-p.Limit:]
		}
		return encode(map[string]any{"session_id": p.SessionID, "messages": msgs})
	}
}

func sessionDeleteHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		SessionID string `json:"session_id"`
	}
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("%w: session_id required", domain.ErrRPCInvalidPayload)
		}
		if err := deps.Sessions.Delete(p.SessionID); err != nil {
			return nil, err
		}
		return encode(map[string]bool{"deleted": true})
	}
}

// --- archive ---

func archiveSearchHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		Keywords []string `json:"keywords"`
		Limit    int      `json:"limit"`
	}
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if len(p.Keywords) == 0 {
			return nil, fmt.Errorf("%w: keywords required", domain.ErrRPCInvalidPayload)
		}
		entries, err := deps.Archive.Search(ctx, p.Keywords, p.Limit)
		if err != nil {
			return nil, err
		}
		return encode(map[string]any{"count": len(entries), "entries": entries})
	}
}

func archiveRecentHandler(deps HandlerDeps) RPCHandler {
	type params struct {
		SessionID string `json:"session_id"`
		Limit     int    `json:"limit"`
	}
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var p params
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("%w: session_id required", domain.ErrRPCInvalidPayload)
		}
		entries, err := deps.Archive.Recent(ctx, p.SessionID, p.Limit)
		if err != nil {
			return nil, err
		}
		return encode(map[string]any{"count": len(entries), "entries": entries})
	}
}
