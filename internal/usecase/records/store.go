// Package records implements the shared record store: a typed in-memory arena
// of customer requests, day plans, strategic insights, and agent profiles,
// persisted as one JSON file per kind. All cross-record relationships are
// identifier lists, and every mutation funnels through this package so the
// feedback-loop invariants hold no matter which agent produced the change.
package records

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"adjutant/internal/domain"
)

// Store is the single serializing boundary over the record files. Reads hand
// out deep copies; callers never share memory with the arena.
type Store struct {
	dir string
	log *slog.Logger
	bus domain.EventBus

	mu       sync.RWMutex
	requests map[string]*domain.CustomerRequest
	plans    map[string]*domain.DayPlan
	insights map[string]*domain.StrategicInsight
	profiles map[string]*domain.AgentProfile
}

// NewStore opens the record store rooted at dir, loading any existing files
// and repairing feedback-loop state left behind by a crash mid-save.
func NewStore(dir string, log *slog.Logger, bus domain.EventBus) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, domain.NewSubSystemError("records", "NewStore", domain.ErrPersistence,
			fmt.Sprintf("create dir: %v", err))
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		dir:      dir,
		log:      log,
		bus:      bus,
		requests: make(map[string]*domain.CustomerRequest),
		plans:    make(map[string]*domain.DayPlan),
		insights: make(map[string]*domain.StrategicInsight),
		profiles: make(map[string]*domain.AgentProfile),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.reconcile()
	return s, nil
}

func (s *Store) load() error {
	var requests []*domain.CustomerRequest
	if err := readJSON(s.pathFor(domain.KindCustomerRequest), &requests); err != nil {
		return domain.NewSubSystemError("records", "load", err, requestsFile)
	}
	for _, r := range requests {
		s.requests[r.ID] = r
	}

	var plans []*domain.DayPlan
	if err := readJSON(s.pathFor(domain.KindDayPlan), &plans); err != nil {
		return domain.NewSubSystemError("records", "load", err, plansFile)
	}
	for _, p := range plans {
		s.plans[p.ID] = p
	}

	var insights []*domain.StrategicInsight
	if err := readJSON(s.pathFor(domain.KindInsight), &insights); err != nil {
		return domain.NewSubSystemError("records", "load", err, insightsFile)
	}
	for _, in := range insights {
		s.insights[in.ID] = in
	}

	var profiles []*domain.AgentProfile
	if err := readJSON(s.pathFor(domain.KindAgentProfile), &profiles); err != nil {
		return domain.NewSubSystemError("records", "load", err, profilesFile)
	}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}

	return nil
}

// reconcile repairs cross-record state after load. A crash between the plan
// write and the request/insight writes can leave surfacing or promotion
// unapplied, and a crash inside Link can leave a one-sided reference. Both
// repairs are idempotent, so replaying them over healthy data changes nothing.
func (s *Store) reconcile() {
	changedRequests := false
	changedInsights := false

	for _, p := range s.plans {
		if p.Deleted {
			continue
		}
		for _, id := range p.LinkedRequestIDs() {
			r, ok := s.requests[id]
			if !ok {
				s.log.Warn("plan links unknown request", "plan", p.ID, "request", id)
				continue
			}
			if r.MarkSurfaced(p.ID, p.GeneratedAt) {
				changedRequests = true
				s.log.Info("repaired missing surface mark", "plan", p.ID, "request", id)
			}
		}
		for _, id := range p.PromotedInsightIDs() {
			in, ok := s.insights[id]
			if !ok {
				s.log.Warn("plan references unknown insight", "plan", p.ID, "insight", id)
				continue
			}
			if in.Promote() {
				changedInsights = true
				s.log.Info("repaired missing promotion", "plan", p.ID, "insight", id)
			}
		}
	}

	// Union one-sided links in both directions.
	for _, r := range s.requests {
		for _, insightID := range r.LinkedInsightIDs {
			if in, ok := s.insights[insightID]; ok && in.LinkRequest(r.ID) {
				changedInsights = true
			}
		}
	}
	for _, in := range s.insights {
		for _, requestID := range in.LinkedRequestIDs {
			if r, ok := s.requests[requestID]; ok && r.LinkInsight(in.ID) {
				changedRequests = true
			}
		}
	}

	if changedRequests {
		if err := s.persistRequests(); err != nil {
			s.log.Error("persist repaired requests", "error", err)
		}
	}
	if changedInsights {
		if err := s.persistInsights(); err != nil {
			s.log.Error("persist repaired insights", "error", err)
		}
	}
}

// --- reads ---

// Requests returns all non-deleted requests ordered by creation time.
func (s *Store) Requests() []*domain.CustomerRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.CustomerRequest, 0, len(s.requests))
	for _, r := range s.requests {
		if r.Deleted {
			continue
		}
		out = append(out, r.Clone())
	}
	sortByCreated(out)
	return out
}

// Plans returns all non-deleted plans ordered by creation time.
func (s *Store) Plans() []*domain.DayPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.DayPlan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Deleted {
			continue
		}
		out = append(out, p.Clone())
	}
	sortByCreated(out)
	return out
}

// Insights returns all non-deleted insights ordered by creation time.
func (s *Store) Insights() []*domain.StrategicInsight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.StrategicInsight, 0, len(s.insights))
	for _, in := range s.insights {
		if in.Deleted {
			continue
		}
		out = append(out, in.Clone())
	}
	sortByCreated(out)
	return out
}

// Profiles returns all non-deleted agent profiles ordered by creation time.
func (s *Store) Profiles() []*domain.AgentProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AgentProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.Deleted {
			continue
		}
		out = append(out, p.Clone())
	}
	sortByCreated(out)
	return out
}

// GetRequest returns a copy of the request with the given id, deleted or not.
func (s *Store) GetRequest(id string) (*domain.CustomerRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, domain.NewSubSystemError("records", "GetRequest", domain.ErrRecordNotFound, id)
	}
	return r.Clone(), nil
}

// GetPlan returns a copy of the plan with the given id.
func (s *Store) GetPlan(id string) (*domain.DayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, domain.NewSubSystemError("records", "GetPlan", domain.ErrRecordNotFound, id)
	}
	return p.Clone(), nil
}

// GetInsight returns a copy of the insight with the given id.
func (s *Store) GetInsight(id string) (*domain.StrategicInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.insights[id]
	if !ok {
		return nil, domain.NewSubSystemError("records", "GetInsight", domain.ErrRecordNotFound, id)
	}
	return in.Clone(), nil
}

// GetProfile returns a copy of the agent profile with the given id.
func (s *Store) GetProfile(id string) (*domain.AgentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.NewSubSystemError("records", "GetProfile", domain.ErrRecordNotFound, id)
	}
	return p.Clone(), nil
}

// Snapshot returns an immutable copy of all live records. Agent executions
// read from a snapshot taken at dispatch time and never from the arena.
func (s *Store) Snapshot() *domain.RecordSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &domain.RecordSnapshot{TakenAt: time.Now().UTC()}
	for _, r := range s.requests {
		if !r.Deleted {
			snap.Requests = append(snap.Requests, r.Clone())
		}
	}
	for _, p := range s.plans {
		if !p.Deleted {
			snap.Plans = append(snap.Plans, p.Clone())
		}
	}
	for _, in := range s.insights {
		if !in.Deleted {
			snap.Insights = append(snap.Insights, in.Clone())
		}
	}
	for _, p := range s.profiles {
		if !p.Deleted {
			snap.Profiles = append(snap.Profiles, p.Clone())
		}
	}
	sortByCreated(snap.Requests)
	sortByCreated(snap.Plans)
	sortByCreated(snap.Insights)
	sortByCreated(snap.Profiles)
	return snap
}

// --- writes ---

// SaveRequest validates and upserts a request, returning the stored copy with
// refreshed timestamps and version. A failed disk write leaves both memory
// and disk at the prior state.
func (s *Store) SaveRequest(r *domain.CustomerRequest) (*domain.CustomerRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := r.Clone()
	prev, existed := s.requests[r.ID]
	refreshMeta(&stored.RecordMeta, prev, existed)

	s.requests[r.ID] = stored
	if err := s.persistRequests(); err != nil {
		s.restoreRequest(r.ID, prev, existed)
		return nil, err
	}

	s.publish(domain.EventRecordSaved, "", recordEventPayload{Kind: domain.KindCustomerRequest, ID: stored.ID, Version: stored.Version})
	return stored.Clone(), nil
}

// SaveInsight validates and upserts an insight.
func (s *Store) SaveInsight(in *domain.StrategicInsight) (*domain.StrategicInsight, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := in.Clone()
	prev, existed := s.insights[in.ID]

	// Promotion is monotone. An incoming delta can never clear it.
	if existed && prev.InDayPlan {
		stored.InDayPlan = true
	}
	refreshMeta(&stored.RecordMeta, prev, existed)

	s.insights[in.ID] = stored
	if err := s.persistInsights(); err != nil {
		s.restoreInsight(in.ID, prev, existed)
		return nil, err
	}

	s.publish(domain.EventRecordSaved, "", recordEventPayload{Kind: domain.KindInsight, ID: stored.ID, Version: stored.Version})
	return stored.Clone(), nil
}

// SaveProfile validates and upserts an agent profile.
func (s *Store) SaveProfile(p *domain.AgentProfile) (*domain.AgentProfile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := p.Clone()
	prev, existed := s.profiles[p.ID]
	refreshMeta(&stored.RecordMeta, prev, existed)

	s.profiles[p.ID] = stored
	if err := s.persistProfiles(); err != nil {
		s.restoreProfile(p.ID, prev, existed)
		return nil, err
	}

	s.publish(domain.EventRecordSaved, "", recordEventPayload{Kind: domain.KindAgentProfile, ID: stored.ID, Version: stored.Version})
	return stored.Clone(), nil
}

// SavePlan upserts a plan WITHOUT applying feedback-loop side effects. Plans
// that link requests or insights must go through ApplyPlan; SavePlan exists
// for plain updates such as flipping a focus item's done flag.
func (s *Store) SavePlan(p *domain.DayPlan) (*domain.DayPlan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if other := s.planForDateLocked(p.Date); other != nil && other.ID != p.ID {
		return nil, domain.NewSubSystemError("records", "SavePlan", domain.ErrDuplicate,
			fmt.Sprintf("plan %s already covers %s", other.ID, p.Date))
	}

	stored := p.Clone()
	prev, existed := s.plans[p.ID]
	refreshMeta(&stored.RecordMeta, prev, existed)

	s.plans[p.ID] = stored
	if err := s.persistPlans(); err != nil {
		s.restorePlan(p.ID, prev, existed)
		return nil, err
	}

	s.publish(domain.EventRecordSaved, "", recordEventPayload{Kind: domain.KindDayPlan, ID: stored.ID, Version: stored.Version})
	return stored.Clone(), nil
}

// SoftDelete sets the deleted flag on a record. The record stays on disk and
// remains addressable by id.
func (s *Store) SoftDelete(kind domain.RecordKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.KindCustomerRequest:
		r, ok := s.requests[id]
		if !ok {
			return domain.NewSubSystemError("records", "SoftDelete", domain.ErrRecordNotFound, id)
		}
		prev := r.Clone()
		r.Deleted = true
		r.UpdatedAt = time.Now().UTC()
		r.Version++
		if err := s.persistRequests(); err != nil {
			s.requests[id] = prev
			return err
		}
	case domain.KindDayPlan:
		p, ok := s.plans[id]
		if !ok {
			return domain.NewSubSystemError("records", "SoftDelete", domain.ErrRecordNotFound, id)
		}
		prev := p.Clone()
		p.Deleted = true
		p.UpdatedAt = time.Now().UTC()
		p.Version++
		if err := s.persistPlans(); err != nil {
			s.plans[id] = prev
			return err
		}
	case domain.KindInsight:
		in, ok := s.insights[id]
		if !ok {
			return domain.NewSubSystemError("records", "SoftDelete", domain.ErrRecordNotFound, id)
		}
		prev := in.Clone()
		in.Deleted = true
		in.UpdatedAt = time.Now().UTC()
		in.Version++
		if err := s.persistInsights(); err != nil {
			s.insights[id] = prev
			return err
		}
	case domain.KindAgentProfile:
		p, ok := s.profiles[id]
		if !ok {
			return domain.NewSubSystemError("records", "SoftDelete", domain.ErrRecordNotFound, id)
		}
		prev := p.Clone()
		p.Deleted = true
		p.UpdatedAt = time.Now().UTC()
		p.Version++
		if err := s.persistProfiles(); err != nil {
			s.profiles[id] = prev
			return err
		}
	default:
		return domain.NewSubSystemError("records", "SoftDelete", domain.ErrInvalidInput, string(kind))
	}

	s.publish(domain.EventRecordDeleted, "", recordEventPayload{Kind: kind, ID: id})
	return nil
}

// Link records a bidirectional request<->insight reference. Both sides update
// under one lock and both files persist before the call returns; a failure on
// the second file rolls the whole link back. A crash between the two renames
// is healed by reconcile on next load, which unions one-sided links.
func (s *Store) Link(requestID, insightID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return domain.NewSubSystemError("records", "Link", domain.ErrRecordNotFound, requestID)
	}
	in, ok := s.insights[insightID]
	if !ok {
		return domain.NewSubSystemError("records", "Link", domain.ErrRecordNotFound, insightID)
	}

	prevReq := r.Clone()
	prevIns := in.Clone()

	changedReq := r.LinkInsight(insightID)
	changedIns := in.LinkRequest(requestID)
	if !changedReq && !changedIns {
		return nil
	}
	now := time.Now().UTC()
	if changedReq {
		r.UpdatedAt = now
		r.Version++
	}
	if changedIns {
		in.UpdatedAt = now
		in.Version++
	}

	if err := s.persistRequests(); err != nil {
		s.requests[requestID] = prevReq
		s.insights[insightID] = prevIns
		return err
	}
	if err := s.persistInsights(); err != nil {
		s.requests[requestID] = prevReq
		s.insights[insightID] = prevIns
		// Undo the request file too so disk stays consistent.
		if rerr := s.persistRequests(); rerr != nil {
			s.log.Error("rollback request file after link failure", "error", rerr)
		}
		return err
	}

	s.publish(domain.EventRecordsLinked, "", linkEventPayload{RequestID: requestID, InsightID: insightID})
	return nil
}

// --- helpers ---

// refreshMeta stamps save-time metadata. Creation time and version derive
// from the previously stored record, not from whatever the caller passed in.
// existed must come from the map lookup: a nil concrete pointer boxed into
// the interface would otherwise compare non-nil here.
func refreshMeta(meta *domain.RecordMeta, prev domain.Record, existed bool) {
	now := time.Now().UTC()
	if existed {
		m := prev.Meta()
		meta.CreatedAt = m.CreatedAt
		meta.Version = m.Version + 1
	} else {
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = now
		}
		meta.Version = 1
	}
	meta.UpdatedAt = now
}

func (s *Store) restoreRequest(id string, prev *domain.CustomerRequest, existed bool) {
	if existed {
		s.requests[id] = prev
	} else {
		delete(s.requests, id)
	}
}

func (s *Store) restorePlan(id string, prev *domain.DayPlan, existed bool) {
	if existed {
		s.plans[id] = prev
	} else {
		delete(s.plans, id)
	}
}

func (s *Store) restoreInsight(id string, prev *domain.StrategicInsight, existed bool) {
	if existed {
		s.insights[id] = prev
	} else {
		delete(s.insights, id)
	}
}

func (s *Store) restoreProfile(id string, prev *domain.AgentProfile, existed bool) {
	if existed {
		s.profiles[id] = prev
	} else {
		delete(s.profiles, id)
	}
}

func (s *Store) planForDateLocked(date string) *domain.DayPlan {
	for _, p := range s.plans {
		if !p.Deleted && p.Date == date {
			return p
		}
	}
	return nil
}

func (s *Store) persistRequests() error {
	list := make([]*domain.CustomerRequest, 0, len(s.requests))
	for _, r := range s.requests {
		list = append(list, r)
	}
	sortByCreated(list)
	if err := writeJSON(s.pathFor(domain.KindCustomerRequest), list); err != nil {
		return domain.NewSubSystemError("records", "persist", domain.ErrPersistence, requestsFile+": "+err.Error())
	}
	return nil
}

func (s *Store) persistPlans() error {
	list := make([]*domain.DayPlan, 0, len(s.plans))
	for _, p := range s.plans {
		list = append(list, p)
	}
	sortByCreated(list)
	if err := writeJSON(s.pathFor(domain.KindDayPlan), list); err != nil {
		return domain.NewSubSystemError("records", "persist", domain.ErrPersistence, plansFile+": "+err.Error())
	}
	return nil
}

func (s *Store) persistInsights() error {
	list := make([]*domain.StrategicInsight, 0, len(s.insights))
	for _, in := range s.insights {
		list = append(list, in)
	}
	sortByCreated(list)
	if err := writeJSON(s.pathFor(domain.KindInsight), list); err != nil {
		return domain.NewSubSystemError("records", "persist", domain.ErrPersistence, insightsFile+": "+err.Error())
	}
	return nil
}

func (s *Store) persistProfiles() error {
	list := make([]*domain.AgentProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		list = append(list, p)
	}
	sortByCreated(list)
	if err := writeJSON(s.pathFor(domain.KindAgentProfile), list); err != nil {
		return domain.NewSubSystemError("records", "persist", domain.ErrPersistence, profilesFile+": "+err.Error())
	}
	return nil
}

func (s *Store) publish(t domain.EventType, sessionID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.NewEvent(t, sessionID, payload))
}

type recordEventPayload struct {
	Kind    domain.RecordKind `json:"kind"`
	ID      string            `json:"id"`
	Version int               `json:"version,omitempty"`
}

type linkEventPayload struct {
	RequestID string `json:"request_id"`
	InsightID string `json:"insight_id"`
}

// sortByCreated orders records oldest first, id as tiebreak so ordering is
// stable across processes.
func sortByCreated[R domain.Record](list []R) {
	sort.Slice(list, func(i, j int) bool {
		mi, mj := list[i].Meta(), list[j].Meta()
		if mi.CreatedAt.Equal(mj.CreatedAt) {
			return mi.ID < mj.ID
		}
		return mi.CreatedAt.Before(mj.CreatedAt)
	})
}
