// Package multiagent holds the agent roster and the routing logic that
// decides which agents a chat turn is dispatched to. The Registry is the
// single source of truth for agent descriptors and enforces that each
// record kind has at most one writing agent. Routing itself lives in
// IntentRouter; parallel execution in RoundTable.
package multiagent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"adjutant/internal/domain"
)

// Registry is a thread-safe roster of agent descriptors.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*domain.AgentDescriptor
	order   []string
	writers map[domain.RecordKind]string
	log     *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = discardLogger()
	}
	return &Registry{
		agents:  make(map[string]*domain.AgentDescriptor),
		writers: make(map[domain.RecordKind]string),
		log:     log,
	}
}

// Register adds an agent descriptor to the registry. It fails when the key
// is already taken, or when the descriptor claims write access to a record
// kind that another agent already owns.
func (r *Registry) Register(d domain.AgentDescriptor) error {
	if d.Key == "" {
		return domain.NewSubSystemError("registry", "Register", domain.ErrInvalidInput, "agent key must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[d.Key]; exists {
		return domain.NewSubSystemError("registry", "Register", domain.ErrDuplicate,
			fmt.Sprintf("agent %q already registered", d.Key))
	}
	for _, kind := range d.Writes {
		if owner, taken := r.writers[kind]; taken && owner != d.Key {
			return domain.NewSubSystemError("registry", "Register", domain.ErrWriteNotAllowed,
				fmt.Sprintf("record kind %q is already written by agent %q", kind, owner))
		}
	}

	clone := d
	r.agents[d.Key] = &clone
	r.order = append(r.order, d.Key)
	for _, kind := range d.Writes {
		r.writers[kind] = d.Key
	}
	r.log.Debug("agent registered", "agent", d.Key, "tier", d.Tier, "writes", len(d.Writes))
	return nil
}

// Unregister removes an agent and releases its write ownership. Removing an
// unknown key is not an error.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.agents[key]
	if !ok {
		return
	}
	delete(r.agents, key)
	for _, kind := range d.Writes {
		if r.writers[kind] == key {
			delete(r.writers, kind)
		}
	}
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Resolve returns the descriptor for the given key.
func (r *Registry) Resolve(key string) (*domain.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.agents[key]
	if !ok {
		return nil, domain.NewSubSystemError("registry", "Resolve", domain.ErrAgentNotFound,
			fmt.Sprintf("no agent registered under %q", key))
	}
	clone := *d
	return &clone, nil
}

// Has reports whether an agent is registered under the given key.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[key]
	return ok
}

// List returns all descriptors in registration order. Registration order is
// also dispatch order for round-tables, so builtin agents are seeded first.
func (r *Registry) List() []domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AgentDescriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.agents[key])
	}
	return out
}

// ListTier returns descriptors of the given tier in registration order.
func (r *Registry) ListTier(tier domain.AgentTier) []domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.AgentDescriptor
	for _, key := range r.order {
		if d := r.agents[key]; d.Tier == tier {
			out = append(out, *d)
		}
	}
	return out
}

// Keys returns all registered keys sorted alphabetically. Useful for error
// messages and clarification prompts.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.agents))
	for k := range r.agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriterOf returns the key of the agent that owns writes for the given
// record kind, or false when the kind has no writer.
func (r *Registry) WriterOf(kind domain.RecordKind) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.writers[kind]
	return key, ok
}

// AuthorizeDelta checks that the named agent may emit the given record
// delta. A delta from any agent other than the kind's owner is rejected
// with ErrWriteNotAllowed.
func (r *Registry) AuthorizeDelta(agentKey string, delta domain.RecordDelta) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.agents[agentKey]
	if !ok {
		return domain.NewSubSystemError("registry", "AuthorizeDelta", domain.ErrAgentNotFound,
			fmt.Sprintf("delta from unknown agent %q", agentKey))
	}
	if !d.CanWrite(delta.Kind) {
		return domain.NewSubSystemError("registry", "AuthorizeDelta", domain.ErrWriteNotAllowed,
			fmt.Sprintf("agent %q is not the writer for %q records", agentKey, delta.Kind))
	}
	return nil
}
