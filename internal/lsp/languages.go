package lsp

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LanguageConfig describes how to launch a language server and which files
// it serves.
type LanguageConfig struct {
	Language   string
	Command    string
	Args       []string
	Extensions []string
	// RootFiles are markers used to detect the language of a workspace root.
	RootFiles []string
}

// ConfigRegistry maps languages and file extensions to server configurations.
type ConfigRegistry struct {
	mu      sync.RWMutex
	configs map[string]LanguageConfig
	byExt   map[string]string
	// order is the detection priority. Specific markers (go.mod, Cargo.toml)
	// register before generic ones (Makefile) and must win over them.
	order []string
}

// NewConfigRegistry returns a registry pre-populated with common servers.
func NewConfigRegistry() *ConfigRegistry {
	r := &ConfigRegistry{
		configs: make(map[string]LanguageConfig),
		byExt:   make(map[string]string),
	}
	r.registerDefaults()
	return r
}

func (r *ConfigRegistry) registerDefaults() {
	defaults := []LanguageConfig{
		{
			Language:   "go",
			Command:    "gopls",
			Args:       []string{"serve"},
			Extensions: []string{".go"},
			RootFiles:  []string{"go.mod", "go.sum"},
		},
		{
			Language:   "python",
			Command:    "pyright-langserver",
			Args:       []string{"--stdio"},
			Extensions: []string{".py", ".pyi"},
			RootFiles:  []string{"pyproject.toml", "setup.py", "requirements.txt"},
		},
		{
			Language:   "typescript",
			Command:    "typescript-language-server",
			Args:       []string{"--stdio"},
			Extensions: []string{".ts", ".tsx", ".js", ".jsx"},
			RootFiles:  []string{"package.json", "tsconfig.json"},
		},
		{
			Language:   "rust",
			Command:    "rust-analyzer",
			Args:       nil,
			Extensions: []string{".rs"},
			RootFiles:  []string{"Cargo.toml"},
		},
		{
			Language:   "c",
			Command:    "clangd",
			Args:       nil,
			Extensions: []string{".c", ".h", ".cpp", ".hpp", ".cc"},
			RootFiles:  []string{"compile_commands.json", "CMakeLists.txt", "Makefile"},
		},
	}
	for _, cfg := range defaults {
		r.Register(cfg)
	}
}

// Register adds or replaces a language configuration.
func (r *ConfigRegistry) Register(cfg LanguageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[cfg.Language]; !ok {
		r.order = append(r.order, cfg.Language)
	}
	r.configs[cfg.Language] = cfg
	for _, ext := range cfg.Extensions {
		r.byExt[strings.ToLower(ext)] = cfg.Language
	}
}

// Get returns the configuration for a language.
func (r *ConfigRegistry) Get(language string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[language]
	return cfg, ok
}

// ForFile returns the configuration serving the given file path.
func (r *ConfigRegistry) ForFile(path string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return LanguageConfig{}, false
	}
	return r.configs[lang], true
}

// LanguageID returns the LSP language identifier for a file path, falling
// back to the bare extension.
func (r *ConfigRegistry) LanguageID(path string) string {
	if cfg, ok := r.ForFile(path); ok {
		return cfg.Language
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// DetectLanguage inspects root marker files, then falls back to counting
// source files by extension at the top level of the workspace. Languages are
// tried in registration priority, so a Go repo carrying a Makefile always
// resolves to gopls, not clangd.
func (r *ConfigRegistry) DetectLanguage(root string) (LanguageConfig, error) {
	r.mu.RLock()
	configs := make([]LanguageConfig, 0, len(r.order))
	for _, lang := range r.order {
		configs = append(configs, r.configs[lang])
	}
	r.mu.RUnlock()

	for _, cfg := range configs {
		for _, marker := range cfg.RootFiles {
			if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
				return cfg, nil
			}
		}
	}

	counts := make(map[string]int)
	entries, err := os.ReadDir(root)
	if err != nil {
		return LanguageConfig{}, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if lang, ok := r.byExtLookup(filepath.Ext(e.Name())); ok {
			counts[lang]++
		}
	}

	// Earlier-registered languages win ties.
	best := ""
	for _, cfg := range configs {
		if n := counts[cfg.Language]; n > 0 && (best == "" || n > counts[best]) {
			best = cfg.Language
		}
	}
	if best == "" {
		return LanguageConfig{}, ErrUnsupportedLanguage
	}

	cfg, _ := r.Get(best)
	return cfg, nil
}

func (r *ConfigRegistry) byExtLookup(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.byExt[strings.ToLower(ext)]
	return lang, ok
}
