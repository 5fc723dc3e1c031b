// Package usecase wires the engine together: the orchestrator runs the
// message-handling cycle, the session manager keeps conversation state
// across restarts, and the context builder shapes what each agent sees.
package usecase

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/security"

	"github.com/oklog/ulid/v2"
)

// Session is one working session: bounded message history, the active
// agent roster, and the conversational artifacts (decisions, generated
// outputs, attached documents) that accumulate during it. Sessions are
// conversation state, not business records; they persist as one JSON
// file each so they survive restarts, nothing more.
type Session struct {
	mu sync.RWMutex

	ID           string                   `json:"id"` // ULID
	Title        string                   `json:"title,omitempty"`
	Goal         string                   `json:"goal,omitempty"`
	KeyOutcome   string                   `json:"key_outcome,omitempty"`
	Mode         domain.SessionMode       `json:"mode"`
	Discussion   domain.DiscussionMode    `json:"discussion"`
	FocusedAgent string                   `json:"focused_agent,omitempty"`
	ActiveAgents []string                 `json:"active_agents"`
	Msgs         []domain.Message         `json:"messages"`
	Decisions    []domain.SessionDecision `json:"decisions,omitempty"`
	Outputs      []domain.GeneratedOutput `json:"outputs,omitempty"`
	Documents    []domain.SessionDocument `json:"documents,omitempty"`
	Facilitator  FacilitatorState         `json:"facilitator"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// FacilitatorState tracks the per-session facilitator settings.
type FacilitatorState struct {
	Enabled   bool `json:"enabled"`
	Interval  int  `json:"interval"` // assistant turns between summaries
	IntroSent bool `json:"intro_sent"`
	// TurnsSinceSummary counts assistant turns since the last summary.
	TurnsSinceSummary int `json:"turns_since_summary"`
}

// NewSession creates an empty session with a generated ULID and the
// given starting roster.
func NewSession(activeAgents []string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           generateULID(now),
		Mode:         domain.SessionModeWork,
		Discussion:   domain.DiscussionOpen,
		ActiveAgents: append([]string(nil), activeAgents...),
		Msgs:         make([]domain.Message, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AddMessage appends a message and updates the timestamp.
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.Msgs = append(s.Msgs, msg)
	s.UpdatedAt = time.Now().UTC()
}

// Messages returns a copy of the message history.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.Msgs))
	copy(cp, s.Msgs)
	return cp
}

// MessageCount returns the number of messages in the history.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Msgs)
}

// Truncate keeps only the last maxMessages messages.
func (s *Session) Truncate(maxMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxMessages <= 0 || len(s.Msgs) <= maxMessages {
		return
	}
	s.Msgs = s.Msgs[len(s.Msgs)-maxMessages:]
}

// Agents returns a copy of the active agent keys in roster order.
func (s *Session) Agents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ActiveAgents...)
}

// ActivateAgent adds an agent key to the roster. Returns false when the
// agent was already active.
func (s *Session) ActivateAgent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.ActiveAgents {
		if k == key {
			return false
		}
	}
	s.ActiveAgents = append(s.ActiveAgents, key)
	s.UpdatedAt = time.Now().UTC()
	return true
}

// DeactivateAgent removes an agent key from the roster.
func (s *Session) DeactivateAgent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.ActiveAgents {
		if k == key {
			s.ActiveAgents = append(s.ActiveAgents[:i], s.ActiveAgents[i+1:]...)
			if s.FocusedAgent == key {
				s.FocusedAgent = ""
				s.Discussion = domain.DiscussionOpen
			}
			s.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// AddDecision appends a detected or logged decision.
func (s *Session) AddDecision(d domain.SessionDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Decisions = append(s.Decisions, d)
	s.UpdatedAt = time.Now().UTC()
}

// AddOutput appends a generated output document.
func (s *Session) AddOutput(o domain.GeneratedOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outputs = append(s.Outputs, o)
	s.UpdatedAt = time.Now().UTC()
}

// AttachDocument stores an extracted plain-text document on the session.
// Re-attaching under the same name replaces the prior text.
func (s *Session) AttachDocument(doc domain.SessionDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.Documents {
		if d.Name == doc.Name {
			s.Documents[i] = doc
			s.UpdatedAt = time.Now().UTC()
			return
		}
	}
	s.Documents = append(s.Documents, doc)
	s.UpdatedAt = time.Now().UTC()
}

// Docs returns a copy of the attached documents.
func (s *Session) Docs() []domain.SessionDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.SessionDocument, len(s.Documents))
	copy(cp, s.Documents)
	return cp
}

// SessionManager keeps sessions in memory and mirrors them to one JSON
// file each under dir. With a cipher configured, files are encrypted at
// rest; plaintext files from before encryption was enabled still load.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	dir      string
	cipher   *security.SessionCipher
	defaults SessionDefaults
}

// SessionDefaults seed newly created sessions.
type SessionDefaults struct {
	ActiveAgents        []string
	FacilitatorEnabled  bool
	FacilitatorInterval int
}

// NewSessionManager creates a session manager persisting under dir.
// cipher may be nil for plaintext session files.
func NewSessionManager(dir string, cipher *security.SessionCipher, defaults SessionDefaults) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		dir:      dir,
		cipher:   cipher,
		defaults: defaults,
	}
}

// validateSessionID rejects ids that are unsafe as file names.
func (sm *SessionManager) validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("session ID contains path separators: %q", id)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session ID contains parent directory reference: %q", id)
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session ID contains null byte: %q", id)
	}
	if clean := filepath.Clean(id); clean != id {
		return fmt.Errorf("session ID not clean path: %q vs %q", id, clean)
	}
	return nil
}

// GetOrCreate returns the session with the given id, loading it from
// disk if needed, or creates a fresh one seeded with the defaults.
func (sm *SessionManager) GetOrCreate(id string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[id]; ok {
		return s
	}

	if loaded, err := sm.loadFromDisk(id); err == nil {
		sm.sessions[id] = loaded
		return loaded
	}

	s := NewSession(sm.defaults.ActiveAgents)
	s.ID = id
	s.Facilitator = FacilitatorState{
		Enabled:  sm.defaults.FacilitatorEnabled,
		Interval: sm.defaults.FacilitatorInterval,
	}
	sm.sessions[id] = s
	return s
}

// Get returns an existing session or ErrSessionNotFound.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok {
		return s, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok = sm.sessions[id]; ok {
		return s, nil
	}
	loaded, err := sm.loadFromDisk(id)
	if err != nil {
		return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, id)
	}
	sm.sessions[id] = loaded
	return loaded, nil
}

// Save persists a session to disk.
func (sm *SessionManager) Save(id string) error {
	if err := sm.validateSessionID(id); err != nil {
		return domain.NewDomainError("SessionManager.Save", err, id)
	}

	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if !ok {
		return domain.NewDomainError("SessionManager.Save", domain.ErrSessionNotFound, id)
	}

	if err := os.MkdirAll(sm.dir, 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	payload := string(data)
	if sm.cipher != nil {
		payload, err = sm.cipher.Encrypt(payload)
		if err != nil {
			return domain.NewDomainError("SessionManager.Save", domain.ErrEncryption, id)
		}
	}

	// Same temp+rename discipline as the record store: a crash mid-write
	// must never leave a truncated session file.
	path := filepath.Join(sm.dir, id+".json")
	tmp, err := os.CreateTemp(sm.dir, "."+id+"-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	if _, err := tmp.WriteString(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod session file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes a session from memory and disk.
func (sm *SessionManager) Delete(id string) error {
	if err := sm.validateSessionID(id); err != nil {
		return domain.NewDomainError("SessionManager.Delete", err, id)
	}

	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	path := filepath.Join(sm.dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	if !ok {
		return domain.NewDomainError("SessionManager.Delete", domain.ErrSessionNotFound, id)
	}
	return nil
}

// List returns all in-memory session ids.
func (sm *SessionManager) List() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ReapStale deletes sessions idle longer than maxAge and returns the
// count reaped. Memory and disk are both cleaned.
func (sm *SessionManager) ReapStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	// Identify under read lock, delete under write lock, then clean disk
	// with no lock held.
	sm.mu.RLock()
	var stale []string
	for id, s := range sm.sessions {
		s.mu.RLock()
		old := s.UpdatedAt.Before(cutoff)
		s.mu.RUnlock()
		if old {
			stale = append(stale, id)
		}
	}
	sm.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	sm.mu.Lock()
	for _, id := range stale {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	for _, id := range stale {
		if err := sm.validateSessionID(id); err != nil {
			continue
		}
		os.Remove(filepath.Join(sm.dir, id+".json"))
	}
	return len(stale)
}

func (sm *SessionManager) loadFromDisk(id string) (*Session, error) {
	if err := sm.validateSessionID(id); err != nil {
		return nil, domain.NewDomainError("SessionManager.loadFromDisk", err, id)
	}

	data, err := os.ReadFile(filepath.Join(sm.dir, id+".json"))
	if err != nil {
		return nil, err
	}

	payload := string(data)
	if sm.cipher != nil && sm.cipher.IsEncrypted(payload) {
		payload, err = sm.cipher.Decrypt(payload)
		if err != nil {
			return nil, domain.NewDomainError("SessionManager.loadFromDisk", domain.ErrDecryption, id)
		}
	}

	var s Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, err
	}
	if s.Discussion == "" {
		s.Discussion = domain.DiscussionOpen
	}
	if s.Mode == "" {
		s.Mode = domain.SessionModeWork
	}
	return &s, nil
}
