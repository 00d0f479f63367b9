package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Agent     AgentConfig               `mapstructure:"agent"`
	LSP       LSPConfig                 `mapstructure:"lsp"`
	Workspace WorkspaceConfig           `mapstructure:"workspace"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // openai, openrouter, ollama, vllm, lmstudio, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // optional API key
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// AgentConfig describes query loop runtime parameters.
type AgentConfig struct {
	MaxTurns           int     `mapstructure:"max_turns"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	Temperature        float64 `mapstructure:"temperature"`
	MaxContextBytes    int     `mapstructure:"max_context_bytes"`
	MaxToolOutputBytes int     `mapstructure:"max_tool_output_bytes"`
	FallbackModel      string  `mapstructure:"fallback_model"`
	PreseedFileList    bool    `mapstructure:"preseed_file_list"`
}

// LSPConfig controls language server lifecycle and per-language overrides.
type LSPConfig struct {
	StartupTimeout time.Duration              `mapstructure:"startup_timeout"`
	RequestTimeout time.Duration              `mapstructure:"request_timeout"`
	IdleTimeout    time.Duration              `mapstructure:"idle_timeout"`
	Servers        map[string]LSPServerConfig `mapstructure:"servers"`
}

// LSPServerConfig overrides or adds a language server command.
type LSPServerConfig struct {
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	Extensions []string `mapstructure:"extensions"`
}

// WorkspaceConfig describes the codebase roots the daemon may inspect.
type WorkspaceConfig struct {
	DefaultRoot  string `mapstructure:"default_root"`
	MaxFileBytes int    `mapstructure:"max_file_bytes"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: BYOR_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BYOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("agent.max_turns", 10)
	v.SetDefault("agent.max_tokens", 1024)
	v.SetDefault("agent.temperature", 0.2)
	v.SetDefault("agent.max_context_bytes", 131072)
	v.SetDefault("agent.max_tool_output_bytes", 16384)
	v.SetDefault("agent.fallback_model", "")
	v.SetDefault("agent.preseed_file_list", true)

	v.SetDefault("lsp.startup_timeout", 30*time.Second)
	v.SetDefault("lsp.request_timeout", 10*time.Second)
	v.SetDefault("lsp.idle_timeout", 10*time.Minute)

	v.SetDefault("workspace.default_root", ".")
	v.SetDefault("workspace.max_file_bytes", 262144)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Agent.MaxTurns <= 0 {
		return errors.New("agent.max_turns must be > 0")
	}

	if c.Agent.MaxContextBytes < 0 {
		return errors.New("agent.max_context_bytes must be >= 0")
	}

	if c.Agent.MaxToolOutputBytes <= 0 {
		return errors.New("agent.max_tool_output_bytes must be > 0")
	}

	if fb := strings.TrimSpace(c.Agent.FallbackModel); fb != "" {
		if _, ok := c.Models[fb]; !ok {
			return fmt.Errorf("agent.fallback_model references unknown model %q", fb)
		}
	}

	if c.LSP.StartupTimeout <= 0 {
		return errors.New("lsp.startup_timeout must be > 0")
	}
	if c.LSP.RequestTimeout <= 0 {
		return errors.New("lsp.request_timeout must be > 0")
	}
	if c.LSP.IdleTimeout <= 0 {
		return errors.New("lsp.idle_timeout must be > 0")
	}
	for lang, srv := range c.LSP.Servers {
		if strings.TrimSpace(srv.Command) == "" {
			return fmt.Errorf("lsp server %q must define command", lang)
		}
	}

	if c.Workspace.MaxFileBytes <= 0 {
		return errors.New("workspace.max_file_bytes must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
