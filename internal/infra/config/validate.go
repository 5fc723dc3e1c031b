package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

var validProviderTypes = map[string]bool{
	"openai":  true,
	"azure":   true,
	"ollama":  true,
	"bedrock": true,
}

var validChannelTypes = map[string]bool{
	"cli":     true,
	"discord": true,
	"slack":   true,
}

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateEngine(cfg, ve)
	validateLLM(cfg, ve)
	validateRecords(cfg, ve)
	validateSession(cfg, ve)
	validateLogger(cfg, ve)
	validateGateway(cfg, ve)
	validateChannels(cfg, ve)
	validateScheduler(cfg, ve)
	validateArchive(cfg, ve)
	validatePlugins(cfg, ve)
	validateMCP(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateEngine(cfg *Config, ve *ValidationError) {
	if cfg.Engine.AgentTimeout <= 0 {
		ve.Add("engine.agent_timeout must be > 0")
	}
	if cfg.Engine.MaxToolRounds <= 0 {
		ve.Add("engine.max_tool_rounds must be > 0")
	}
	if cfg.Engine.Facilitator.Enabled {
		if cfg.Engine.Facilitator.Interval <= 0 {
			ve.Add("engine.facilitator.interval must be > 0 when enabled")
		}
		if cfg.Engine.Facilitator.Window <= 0 {
			ve.Add("engine.facilitator.window must be > 0 when enabled")
		}
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	foundAux := cfg.LLM.AuxProvider == ""
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, azure, ollama, bedrock)", i, p.Type)
		}
		// A missing api_key is not a structural error: first boot with
		// defaults must start, and the provider reports ErrAuthInvalid
		// with the env-var hint on first use.
		if p.Type == "azure" && p.Deployment == "" {
			ve.Add("llm.providers[%d] (%s): deployment is required for azure provider", i, p.Name)
		}
		if p.Type == "azure" && p.BaseURL == "" {
			ve.Add("llm.providers[%d] (%s): base_url is required for azure provider", i, p.Name)
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
		if p.Name == cfg.LLM.AuxProvider {
			foundAux = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if !foundAux {
		ve.Add("llm.aux_provider %q does not match any configured provider", cfg.LLM.AuxProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Order {
			if !seen[name] {
				ve.Add("llm.failover.order references unknown provider %q", name)
			}
		}
	}
}

func validateRecords(cfg *Config, ve *ValidationError) {
	if cfg.Records.DataDir == "" {
		ve.Add("records.data_dir must not be empty")
	}
	if cfg.Records.StaleDays <= 0 {
		ve.Add("records.stale_days must be > 0")
	}
	if cfg.Records.MinRequestsForAnalysis < 0 {
		ve.Add("records.min_requests_for_analysis must be >= 0")
	}
	if cfg.Records.AnalysisCorpusLimit <= 0 {
		ve.Add("records.analysis_corpus_limit must be > 0")
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	if cfg.Session.Dir == "" {
		ve.Add("session.dir must not be empty")
	}
	if cfg.Session.MaxMessages <= 0 {
		ve.Add("session.max_messages must be > 0")
	}
	if cfg.Session.TokenBudget <= 0 {
		ve.Add("session.token_budget must be > 0")
	}
	if cfg.Session.Encrypt && os.Getenv("ADJUTANT_SESSION_KEY") == "" {
		ve.Add("session.encrypt requires ADJUTANT_SESSION_KEY to be set")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch cfg.Logger.Level {
	case "", "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "json", "text":
	default:
		ve.Add("logger.format %q is invalid (want: json or text)", cfg.Logger.Format)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.Auth.Type == "static" && len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.type is static but no tokens are configured")
	}
	if cfg.Gateway.RateLimit.Enabled {
		if cfg.Gateway.RateLimit.RequestsPerMin <= 0 {
			ve.Add("gateway.rate_limit.requests_per_min must be > 0 when enabled")
		}
		if cfg.Gateway.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0 when enabled")
		}
	}
}

func validateChannels(cfg *Config, ve *ValidationError) {
	for i, ch := range cfg.Channels {
		if !validChannelTypes[ch.Type] {
			ve.Add("channels[%d].type %q is invalid (want: cli, discord, slack)", i, ch.Type)
			continue
		}
		switch ch.Type {
		case "discord":
			if ch.Discord == nil || ch.Discord.Token == "" {
				ve.Add("channels[%d]: discord.token is required", i)
			}
		case "slack":
			if ch.Slack == nil || ch.Slack.BotToken == "" || ch.Slack.AppToken == "" {
				ve.Add("channels[%d]: slack.bot_token and slack.app_token are required", i)
			}
		}
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	if cfg.Scheduler.StaleSweep == "" && cfg.Scheduler.MorningBriefing == "" {
		ve.Add("scheduler is enabled but no job specs are configured")
	}
}

func validateArchive(cfg *Config, ve *ValidationError) {
	switch cfg.Archive.Provider {
	case "", "none", "sqlite":
	default:
		ve.Add("archive.provider %q is invalid (want: sqlite or none)", cfg.Archive.Provider)
	}
	if cfg.Archive.Provider == "sqlite" && cfg.Archive.Path == "" {
		ve.Add("archive.path is required for the sqlite provider")
	}
}

func validatePlugins(cfg *Config, ve *ValidationError) {
	if !cfg.Plugins.Enabled {
		return
	}
	if cfg.Plugins.Dir == "" {
		ve.Add("plugins.dir is required when plugins are enabled")
	}
	if cfg.Plugins.ExecTimeout <= 0 {
		ve.Add("plugins.exec_timeout must be > 0")
	}
	if cfg.Plugins.MemoryPages <= 0 {
		ve.Add("plugins.memory_pages must be > 0")
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	for i, s := range cfg.MCP.Servers {
		if s.Name == "" {
			ve.Add("mcp.servers[%d].name must not be empty", i)
		}
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				ve.Add("mcp.servers[%d] (%s): command is required for stdio transport", i, s.Name)
			}
		case "sse":
			if s.URL == "" {
				ve.Add("mcp.servers[%d] (%s): url is required for sse transport", i, s.Name)
			}
		default:
			ve.Add("mcp.servers[%d].transport %q is invalid (want: stdio or sse)", i, s.Transport)
		}
	}
}
