package llm

import (
	"errors"
	"testing"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubProvider{name: "openai"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&stubProvider{name: "openai"}); err == nil {
		t.Error("duplicate registration accepted")
	}

	p, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name = %q", p.Name())
	}

	_, err = r.Get("missing")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("err = %v, want provider-not-found", err)
	}
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "main",
		AuxProvider:     "cheap",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai", Model: "gpt-4o"},
			{Name: "cheap", Type: "openai", Model: "gpt-4o-mini"},
			{Name: "local", Type: "ollama", Model: "llama3.1"},
		},
	}

	r, err := NewRegistryFromConfig(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}

	if got := len(r.List()); got != 3 {
		t.Errorf("providers = %d, want 3", got)
	}
	if r.Default().Name() != "main" {
		t.Errorf("Default = %q", r.Default().Name())
	}
	if r.Aux().Name() != "cheap" {
		t.Errorf("Aux = %q", r.Aux().Name())
	}
}

func TestRegistryFromConfigFailoverWrapsDefault(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "main",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai", Model: "gpt-4o"},
			{Name: "backup", Type: "openai", Model: "gpt-4o-mini"},
		},
		Failover: config.FailoverConfig{Enabled: true, Order: []string{"backup"}},
	}

	r, err := NewRegistryFromConfig(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	if r.Default().Name() != "main+failover" {
		t.Errorf("Default = %q, want failover wrapper", r.Default().Name())
	}
	// Aux defaults to the wrapped default when unset.
	if r.Aux().Name() != "main+failover" {
		t.Errorf("Aux = %q", r.Aux().Name())
	}
}

func TestRegistryFromConfigCircuitBreaker(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "main",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai", Model: "gpt-4o"},
		},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2},
	}

	r, err := NewRegistryFromConfig(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	p, err := r.Get("main")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := p.(*CircuitBreakerProvider); !ok {
		t.Errorf("provider type = %T, want circuit breaker wrapper", p)
	}
}

func TestRegistryFromConfigRejectsUnknowns(t *testing.T) {
	_, err := NewRegistryFromConfig(config.LLMConfig{
		DefaultProvider: "main",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "carrier-pigeon"},
		},
	}, newTestLogger())
	if err == nil {
		t.Error("unknown provider type accepted")
	}

	_, err = NewRegistryFromConfig(config.LLMConfig{
		DefaultProvider: "ghost",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai"},
		},
	}, newTestLogger())
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("err = %v, want provider-not-found for missing default", err)
	}
}
