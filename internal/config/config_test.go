package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
version: "0.1.0"
providers:
  ollama:
    type: ollama
    base_url: http://localhost:11434
    timeout: 30s
models:
  main:
    provider: ollama
    model: qwen3
    temperature: 0.2
    max_tokens: 2048
    default: true
agent:
  max_turns: 6
lsp:
  request_timeout: 5s
`

	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "ollama", cfg.Models["main"].Provider)
	require.Equal(t, 6, cfg.Agent.MaxTurns)
	require.Equal(t, 5*time.Second, cfg.LSP.RequestTimeout)
	require.Equal(t, 10*time.Minute, cfg.LSP.IdleTimeout)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
providers:
  ollama:
    type: ollama
    base_url: http://localhost:11434
models:
  main:
    provider: ollama
    model: qwen3
    default: true
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	t.Setenv("BYOR_AGENT_MAX_TURNS", "12")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 12, cfg.Agent.MaxTurns)
}

func TestValidateFailsOnUnknownProvider(t *testing.T) {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"ollama": {Type: "ollama"},
		},
		Models: map[string]ModelConfig{
			"broken": {Provider: "missing", Default: true},
		},
		Agent: AgentConfig{
			MaxTurns:           1,
			MaxToolOutputBytes: 1024,
		},
		LSP: LSPConfig{
			StartupTimeout: time.Second,
			RequestTimeout: time.Second,
			IdleTimeout:    time.Minute,
		},
		Workspace: WorkspaceConfig{MaxFileBytes: 1024},
	}

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateFailsOnServerWithoutCommand(t *testing.T) {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"ollama": {Type: "ollama"},
		},
		Models: map[string]ModelConfig{
			"main": {Provider: "ollama", Default: true},
		},
		Agent: AgentConfig{
			MaxTurns:           1,
			MaxToolOutputBytes: 1024,
		},
		LSP: LSPConfig{
			StartupTimeout: time.Second,
			RequestTimeout: time.Second,
			IdleTimeout:    time.Minute,
			Servers: map[string]LSPServerConfig{
				"go": {Args: []string{"serve"}},
			},
		},
		Workspace: WorkspaceConfig{MaxFileBytes: 1024},
	}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "must define command")
}
