package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.LLM.Providers[0].APIKey = "sk-test"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateMissingDefaultProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.DefaultProvider = "nope"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "does not match any configured provider") {
		t.Errorf("error = %v, want provider mismatch", err)
	}
}

func TestValidateDuplicateProviders(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
		Name: "openai", Type: "openai", APIKey: "k", Model: "m",
	})
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate provider name") {
		t.Errorf("error = %v, want duplicate provider", err)
	}
}

func TestValidateAzureRequiresDeployment(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
		Name: "az", Type: "azure", APIKey: "k", Model: "m", BaseURL: "https://x",
	})
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "deployment is required") {
		t.Errorf("error = %v, want deployment required", err)
	}
}

func TestValidateOllamaNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
		Name: "local", Type: "ollama", Model: "llama3", BaseURL: "http://localhost:11434",
	})
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateGatewayAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Enabled = true
	cfg.Gateway.Addr = "not-a-hostport"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "not a valid host:port") {
		t.Errorf("error = %v, want addr error", err)
	}
}

func TestValidateGatewayStaticNeedsTokens(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Enabled = true
	cfg.Gateway.Auth.Type = "static"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "no tokens are configured") {
		t.Errorf("error = %v, want token error", err)
	}
}

func TestValidateChannels(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = []ChannelConfig{{Type: "discord"}}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "discord.token is required") {
		t.Errorf("error = %v, want discord token error", err)
	}

	cfg = validConfig()
	cfg.Channels = []ChannelConfig{{Type: "irc"}}
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "is invalid") {
		t.Errorf("error = %v, want channel type error", err)
	}
}

func TestValidateFailoverOrder(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Failover.Enabled = true
	cfg.LLM.Failover.Order = []string{"ghost"}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("error = %v, want failover order error", err)
	}
}

func TestValidateMCPServers(t *testing.T) {
	cfg := validConfig()
	cfg.MCP.Servers = []MCPServerConfig{{Name: "fs", Transport: "stdio"}}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Errorf("error = %v, want stdio command error", err)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.AgentTimeout = 0
	cfg.Records.StaleDays = 0
	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if len(ve.Errors) < 2 {
		t.Errorf("Errors = %v, want at least 2", ve.Errors)
	}
}

func TestValidateKeylessDefaults(t *testing.T) {
	// First boot with no config file and no env must start; a missing
	// api_key surfaces at the provider call, not at validation.
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
