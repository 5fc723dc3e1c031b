package usecase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/security"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	return NewSessionManager(t.TempDir(), nil, SessionDefaults{
		ActiveAgents:        []string{"intake", "planner", "challenger"},
		FacilitatorEnabled:  true,
		FacilitatorInterval: 6,
	})
}

func TestGetOrCreateSeedsDefaults(t *testing.T) {
	sm := newTestManager(t)
	s := sm.GetOrCreate("team-a")

	if s.ID != "team-a" {
		t.Errorf("ID = %q", s.ID)
	}
	if got := s.Agents(); len(got) != 3 || got[0] != "intake" {
		t.Errorf("Agents = %v", got)
	}
	if !s.Facilitator.Enabled || s.Facilitator.Interval != 6 {
		t.Errorf("Facilitator = %+v", s.Facilitator)
	}
	if s.Discussion != domain.DiscussionOpen || s.Mode != domain.SessionModeWork {
		t.Errorf("Discussion/Mode = %q/%q", s.Discussion, s.Mode)
	}

	if again := sm.GetOrCreate("team-a"); again != s {
		t.Error("GetOrCreate returned a different instance for the same id")
	}
}

func TestSessionSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	sm := NewSessionManager(dir, nil, SessionDefaults{ActiveAgents: []string{"intake"}})

	s := sm.GetOrCreate("persist-me")
	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "hello"})
	s.AddMessage(domain.Message{Role: domain.RoleAssistant, Name: "intake", Content: "logged"})
	s.AddDecision(domain.SessionDecision{ID: "d1", Content: "ship it", MadeAt: time.Now().UTC()})
	s.AttachDocument(domain.SessionDocument{Name: "notes.txt", Text: "raw notes"})
	if err := sm.Save("persist-me"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh manager must load it from disk.
	sm2 := NewSessionManager(dir, nil, SessionDefaults{})
	loaded, err := sm2.Get("persist-me")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if loaded.MessageCount() != 2 {
		t.Errorf("MessageCount = %d, want 2", loaded.MessageCount())
	}
	if len(loaded.Decisions) != 1 || loaded.Decisions[0].Content != "ship it" {
		t.Errorf("Decisions = %+v", loaded.Decisions)
	}
	if docs := loaded.Docs(); len(docs) != 1 || docs[0].Name != "notes.txt" {
		t.Errorf("Docs = %+v", docs)
	}
}

func TestSessionSaveEncrypted(t *testing.T) {
	dir := t.TempDir()
	cipher, err := security.NewSessionCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewSessionCipher: %v", err)
	}
	sm := NewSessionManager(dir, cipher, SessionDefaults{})

	s := sm.GetOrCreate("secret")
	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "the plaintext marker"})
	if err := sm.Save("secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "secret.json"))
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	if strings.Contains(string(raw), "the plaintext marker") {
		t.Fatal("session file holds plaintext despite cipher")
	}

	sm2 := NewSessionManager(dir, cipher, SessionDefaults{})
	loaded, err := sm2.Get("secret")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.MessageCount() != 1 {
		t.Errorf("MessageCount = %d, want 1", loaded.MessageCount())
	}
}

func TestSessionIDValidation(t *testing.T) {
	sm := newTestManager(t)
	for _, id := range []string{"", "a/b", `a\b`, "..", "x..y", "nul\x00byte"} {
		if err := sm.Save(id); err == nil {
			t.Errorf("Save(%q) accepted an unsafe id", id)
		}
	}
}

func TestSessionTruncateKeepsTail(t *testing.T) {
	s := NewSession(nil)
	for i := 0; i < 10; i++ {
		s.AddMessage(domain.Message{Role: domain.RoleUser, Content: strings.Repeat("x", i+1)})
	}
	s.Truncate(4)
	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if len(msgs[3].Content) != 10 {
		t.Errorf("tail message lost: %q", msgs[3].Content)
	}
}

func TestActivateDeactivateAgent(t *testing.T) {
	s := NewSession([]string{"intake"})

	if !s.ActivateAgent("writer") {
		t.Error("ActivateAgent(writer) = false")
	}
	if s.ActivateAgent("writer") {
		t.Error("duplicate activation reported true")
	}

	s.FocusedAgent = "writer"
	s.Discussion = domain.DiscussionFocused
	if !s.DeactivateAgent("writer") {
		t.Error("DeactivateAgent(writer) = false")
	}
	if s.FocusedAgent != "" || s.Discussion != domain.DiscussionFocused && s.Discussion != domain.DiscussionOpen {
		t.Errorf("focus not cleared: %q/%q", s.FocusedAgent, s.Discussion)
	}
	if s.Discussion != domain.DiscussionOpen {
		t.Errorf("Discussion = %q, want open after focused agent left", s.Discussion)
	}
}

func TestReapStale(t *testing.T) {
	sm := newTestManager(t)
	old := sm.GetOrCreate("old")
	sm.GetOrCreate("fresh")

	old.mu.Lock()
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	old.mu.Unlock()

	if n := sm.ReapStale(24 * time.Hour); n != 1 {
		t.Fatalf("ReapStale = %d, want 1", n)
	}
	if _, err := sm.Get("old"); err == nil {
		t.Error("stale session still retrievable")
	}
	if _, err := sm.Get("fresh"); err != nil {
		t.Errorf("fresh session reaped: %v", err)
	}
}
