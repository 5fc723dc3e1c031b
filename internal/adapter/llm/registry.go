package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

// Registry holds named LLM providers and resolves the default and
// auxiliary providers from configuration.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
	def       domain.LLMProvider
	aux       domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// NewRegistryFromConfig builds every configured provider, wraps each in a
// circuit breaker when enabled, and assembles the failover chain around
// the default provider.
func NewRegistryFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()

	for _, pc := range cfg.Providers {
		if pc.APIKey == "" && pc.Type != "bedrock" && pc.Type != "ollama" && logger != nil {
			logger.Warn("provider has no api key; calls will fail until one is set",
				"provider", pc.Name,
				"env", "ADJUTANT_LLM_PROVIDER_"+strings.ToUpper(pc.Name)+"_API_KEY")
		}
		p, err := buildProvider(pc, logger)
		if err != nil {
			return nil, err
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}

	def, err := r.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}

	if cfg.Failover.Enabled {
		var fallbacks []domain.LLMProvider
		order := cfg.Failover.Order
		if len(order) == 0 {
			// No explicit order: fall back through the remaining
			// providers in config order.
			for _, pc := range cfg.Providers {
				if pc.Name != cfg.DefaultProvider {
					order = append(order, pc.Name)
				}
			}
		}
		for _, name := range order {
			if name == cfg.DefaultProvider {
				continue
			}
			fb, err := r.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover order: %w", err)
			}
			fallbacks = append(fallbacks, fb)
		}
		if len(fallbacks) > 0 {
			def = NewFailoverProvider(def, fallbacks, logger)
		}
	}
	r.def = def

	r.aux = def
	if cfg.AuxProvider != "" {
		aux, err := r.Get(cfg.AuxProvider)
		if err != nil {
			return nil, fmt.Errorf("aux provider: %w", err)
		}
		r.aux = aux
	}

	return r, nil
}

// buildProvider constructs one provider from its config entry.
func buildProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return NewOpenAIProvider(pc, logger), nil
	case "azure":
		return NewAzureProvider(pc, logger)
	case "ollama":
		return NewOllamaProvider(pc, logger), nil
	case "bedrock":
		return NewBedrockProvider(pc, logger)
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", pc.Name, pc.Type)
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Default returns the provider used for specialist turns, including any
// failover wrapping.
func (r *Registry) Default() domain.LLMProvider { return r.def }

// Aux returns the provider for short auxiliary calls (routing
// classification, facilitation). Falls back to Default.
func (r *Registry) Aux() domain.LLMProvider { return r.aux }

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
