// Package config loads, validates, and applies environment overrides to the
// engine configuration. Configuration is YAML with sane defaults, so a first
// run needs no config file at all.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the engine.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	LLM       LLMConfig       `yaml:"llm"`
	Records   RecordsConfig   `yaml:"records"`
	Session   SessionConfig   `yaml:"session"`
	Router    RouterConfig    `yaml:"router"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Channels  []ChannelConfig `yaml:"channels,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
	Plugins   PluginsConfig   `yaml:"plugins"`
}

// EngineConfig controls the orchestration cycle.
type EngineConfig struct {
	// AgentTimeout bounds a single specialist turn, including tool rounds.
	AgentTimeout time.Duration `yaml:"agent_timeout"`
	// RetryOnce re-runs a failed round-table specialist one time.
	RetryOnce  bool          `yaml:"retry_once"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	// MaxToolRounds caps tool-call iterations within one specialist turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// ActiveAgents are the specialist keys enabled at startup.
	ActiveAgents []string          `yaml:"active_agents"`
	Facilitator  FacilitatorConfig `yaml:"facilitator"`
}

// FacilitatorConfig controls periodic discussion summarization.
type FacilitatorConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval is the number of user turns between facilitator passes.
	Interval int `yaml:"interval"`
	// Window is how many recent messages the facilitator reads.
	Window int `yaml:"window"`
}

// LLMConfig configures chat-completion providers.
type LLMConfig struct {
	// DefaultProvider names the provider used for specialist turns.
	DefaultProvider string `yaml:"default_provider"`
	// AuxProvider names the provider for short auxiliary calls (routing
	// classification, facilitation). Empty means use DefaultProvider.
	AuxProvider    string               `yaml:"aux_provider,omitempty"`
	Providers      []ProviderConfig     `yaml:"providers"`
	Failover       FailoverConfig       `yaml:"failover"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig describes one chat-completion backend.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // openai, azure, ollama, bedrock
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model"`
	// Deployment and APIVersion apply to azure providers only.
	Deployment string `yaml:"deployment,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"`
	// Region applies to bedrock providers only.
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout,omitempty"`
	RespTimeout time.Duration `yaml:"resp_timeout,omitempty"`
	Pool        PoolConfig    `yaml:"pool,omitempty"`
}

// PoolConfig tunes the HTTP connection pool for a provider.
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host,omitempty"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout,omitempty"`
}

// FailoverConfig orders backup providers tried when the primary fails.
type FailoverConfig struct {
	Enabled bool     `yaml:"enabled"`
	Order   []string `yaml:"order,omitempty"`
}

// CircuitBreakerConfig wraps providers in a circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RecordsConfig configures the shared record store.
type RecordsConfig struct {
	// DataDir holds requests.json, plans.json, insights.json, agents.json.
	DataDir string `yaml:"data_dir"`
	// StaleDays is the age past which an open request counts as stale.
	StaleDays int `yaml:"stale_days"`
	// MinRequestsForAnalysis gates pattern analysis on corpus size.
	MinRequestsForAnalysis int `yaml:"min_requests_for_analysis"`
	// AnalysisCorpusLimit caps how many requests one analysis pass reads.
	AnalysisCorpusLimit int `yaml:"analysis_corpus_limit"`
}

// SessionConfig configures conversation session persistence.
type SessionConfig struct {
	Dir string `yaml:"dir"`
	// MaxMessages bounds stored history per session; older turns drop off.
	MaxMessages int `yaml:"max_messages"`
	// StaleAfter is the idle age after which sessions are reaped.
	StaleAfter time.Duration `yaml:"stale_after"`
	// Encrypt stores session files AES-256-GCM encrypted. The passphrase
	// comes from ADJUTANT_SESSION_KEY.
	Encrypt bool `yaml:"encrypt"`
	// TokenBudget caps prompt size when assembling specialist context.
	TokenBudget int `yaml:"token_budget"`
	// TokenModel selects the tokenizer used for budget counting.
	TokenModel string `yaml:"token_model"`
}

// RouterConfig tunes intent routing.
type RouterConfig struct {
	// ClassifierTimeout bounds the LLM classification call; on timeout the
	// router falls back to a full round-table.
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
	// ExtraAliases merges additional mention aliases over the built-ins,
	// keyed by agent key.
	ExtraAliases map[string][]string `yaml:"extra_aliases,omitempty"`
}

// LoggerConfig controls structured logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or none
}

// GatewayConfig controls the WebSocket RPC gateway.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig configures gateway authentication.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig is one named static bearer token.
type TokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// RateLimitConfig bounds inbound gateway requests per client IP.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin float64  `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// ChannelConfig enables one inbound/outbound chat surface.
type ChannelConfig struct {
	Type    string         `yaml:"type"` // cli, discord, slack
	Discord *DiscordConfig `yaml:"discord,omitempty"`
	Slack   *SlackConfig   `yaml:"slack,omitempty"`
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id,omitempty"`
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// SchedulerConfig configures cron-driven background jobs.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone,omitempty"`
	// StaleSweep is a cron spec for the stale-request sweep.
	StaleSweep string `yaml:"stale_sweep"`
	// MorningBriefing is a cron spec for the plan reminder.
	MorningBriefing string `yaml:"morning_briefing"`
}

// ArchiveConfig configures the searchable activity archive.
type ArchiveConfig struct {
	Provider string `yaml:"provider"` // sqlite or none
	Path     string `yaml:"path,omitempty"`
}

// ToolsConfig configures built-in tools.
type ToolsConfig struct {
	// SearchLimit caps results returned by record search tools.
	SearchLimit int           `yaml:"search_limit"`
	Browser     BrowserConfig `yaml:"browser"`
}

// BrowserConfig configures the headless-browser page fetch tool.
type BrowserConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Timeout  time.Duration `yaml:"timeout"`
	Headless bool          `yaml:"headless"`
}

// MCPConfig lists external MCP tool servers to bridge.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers,omitempty"`
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport"` // stdio or sse
	Command   string   `yaml:"command,omitempty"`
	Args      []string `yaml:"args,omitempty"`
	URL       string   `yaml:"url,omitempty"`
	Enabled   bool     `yaml:"enabled"`
}

// PluginsConfig configures WASM tool plugins.
type PluginsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"`
	// ExecTimeout bounds a single plugin invocation.
	ExecTimeout time.Duration `yaml:"exec_timeout"`
	// MemoryPages caps plugin linear memory (64KiB pages).
	MemoryPages int `yaml:"memory_pages"`
}

// Defaults returns a Config with all defaults applied.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			AgentTimeout:  90 * time.Second,
			RetryOnce:     true,
			RetryDelay:    2 * time.Second,
			MaxToolRounds: 5,
			ActiveAgents:  []string{"intake", "planner", "analyst"},
			Facilitator: FacilitatorConfig{
				Enabled:  true,
				Interval: 6,
				Window:   20,
			},
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{
					Name:        "openai",
					Type:        "openai",
					Model:       "gpt-4o",
					ConnTimeout: 10 * time.Second,
					RespTimeout: 120 * time.Second,
				},
			},
			Failover: FailoverConfig{Enabled: false},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
			},
		},
		Records: RecordsConfig{
			DataDir:                defaultDataDir(),
			StaleDays:              14,
			MinRequestsForAnalysis: 10,
			AnalysisCorpusLimit:    50,
		},
		Session: SessionConfig{
			Dir:         defaultSessionDir(),
			MaxMessages: 400,
			StaleAfter:  30 * 24 * time.Hour,
			Encrypt:     false,
			TokenBudget: 24000,
			TokenModel:  "gpt-4o",
		},
		Router: RouterConfig{
			ClassifierTimeout: 10 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Addr:    "127.0.0.1:18789",
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				Burst:          30,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:         false,
			StaleSweep:      "0 7 * * 1-5",
			MorningBriefing: "30 8 * * 1-5",
		},
		Archive: ArchiveConfig{
			Provider: "sqlite",
			Path:     filepath.Join(defaultDataDir(), "archive.db"),
		},
		Tools: ToolsConfig{
			SearchLimit: 10,
			Browser: BrowserConfig{
				Enabled:  false,
				Timeout:  30 * time.Second,
				Headless: true,
			},
		},
		Plugins: PluginsConfig{
			Enabled:     false,
			ExecTimeout: 10 * time.Second,
			MemoryPages: 256,
		},
	}
}

// Load reads the config file at path (if it exists), applies environment
// overrides, decrypts any "enc:" secrets, and validates the result. An empty
// path or a missing file yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: defaults plus env only.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := validatePermissions(path); err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("ADJUTANT_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt config secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies ADJUTANT_* environment variables over cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ADJUTANT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ADJUTANT_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("ADJUTANT_DATA_DIR"); v != "" {
		cfg.Records.DataDir = v
	}
	if v := os.Getenv("ADJUTANT_SESSION_DIR"); v != "" {
		cfg.Session.Dir = v
	}
	if v := os.Getenv("ADJUTANT_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("ADJUTANT_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("ADJUTANT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens,
			TokenConfig{Name: "env", Token: v})
	}
	if v := os.Getenv("ADJUTANT_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}

	// Per-provider API keys: ADJUTANT_LLM_PROVIDER_<NAME>_API_KEY.
	for i := range cfg.LLM.Providers {
		name := strings.ToUpper(strings.ReplaceAll(cfg.LLM.Providers[i].Name, "-", "_"))
		if v := os.Getenv("ADJUTANT_LLM_PROVIDER_" + name + "_API_KEY"); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	for i := range cfg.Channels {
		var fields []*string
		ch := &cfg.Channels[i]
		if ch.Discord != nil {
			fields = append(fields, &ch.Discord.Token)
		}
		if ch.Slack != nil {
			fields = append(fields, &ch.Slack.BotToken, &ch.Slack.AppToken)
		}
		for _, fp := range fields {
			if strings.HasPrefix(*fp, "enc:") {
				decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
				if err != nil {
					return fmt.Errorf("channel %s token: %w", ch.Type, err)
				}
				*fp = decrypted
			}
		}
	}

	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The output goes into config files as "enc:" + value.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".adjutant", "data")
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./sessions"
	}
	return filepath.Join(home, ".adjutant", "sessions")
}
