package lsp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForFile(t *testing.T) {
	t.Parallel()

	r := NewConfigRegistry()

	cfg, ok := r.ForFile("internal/agent/loop.go")
	require.True(t, ok)
	require.Equal(t, "gopls", cfg.Command)

	cfg, ok = r.ForFile("src/App.TSX")
	require.True(t, ok)
	require.Equal(t, "typescript", cfg.Language)

	_, ok = r.ForFile("README.md")
	require.False(t, ok)
}

func TestRegisterOverridesDefaults(t *testing.T) {
	t.Parallel()

	r := NewConfigRegistry()
	r.Register(LanguageConfig{
		Language:   "go",
		Command:    "custom-gopls",
		Extensions: []string{".go"},
		RootFiles:  []string{"go.mod"},
	})

	cfg, ok := r.Get("go")
	require.True(t, ok)
	require.Equal(t, "custom-gopls", cfg.Command)
}

func TestDetectLanguageByRootMarker(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte("[package]"), 0o644))

	cfg, err := NewConfigRegistry().DetectLanguage(root)
	require.NoError(t, err)
	require.Equal(t, "rust", cfg.Language)
}

func TestDetectLanguageByExtensionFallback(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("y = 2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.rs"), []byte("fn main() {}"), 0o644))

	cfg, err := NewConfigRegistry().DetectLanguage(root)
	require.NoError(t, err)
	require.Equal(t, "python", cfg.Language)
}

func TestDetectLanguageMarkerPriority(t *testing.T) {
	t.Parallel()

	// A Go repo commonly carries a Makefile, which is also a C root marker.
	// go.mod registers ahead of Makefile and must win on every run.
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/m"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Makefile"), []byte("all:\n\tgo build ./...\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))

	r := NewConfigRegistry()
	for i := 0; i < 50; i++ {
		cfg, err := r.DetectLanguage(root)
		require.NoError(t, err)
		require.Equal(t, "go", cfg.Language)
	}
}

func TestDetectLanguageUnsupported(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o644))

	_, err := NewConfigRegistry().DetectLanguage(root)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}
