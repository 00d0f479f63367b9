package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocationsNull(t *testing.T) {
	t.Parallel()

	locs, err := parseLocations(json.RawMessage(`null`))
	require.NoError(t, err)
	require.Empty(t, locs)

	locs, err = parseLocations(json.RawMessage(`[]`))
	require.NoError(t, err)
	require.Empty(t, locs)
}

func TestParseLocationsSingle(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"uri": "file:///repo/main.go",
		"range": {"start": {"line": 9, "character": 4}, "end": {"line": 9, "character": 12}}
	}`)

	locs, err := parseLocations(raw)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "/repo/main.go", locs[0].Path)
	require.Equal(t, 10, locs[0].Line)
	require.Equal(t, 5, locs[0].Column)
	require.Equal(t, "/repo/main.go:10:5", locs[0].String())
}

func TestParseLocationsArray(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`[
		{"uri": "file:///repo/a.go", "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 1}}},
		{"uri": "file:///repo/b.go", "range": {"start": {"line": 41, "character": 7}, "end": {"line": 41, "character": 9}}}
	]`)

	locs, err := parseLocations(raw)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	require.Equal(t, "/repo/b.go", locs[1].Path)
	require.Equal(t, 42, locs[1].Line)
}

func TestParseLocationsLinks(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`[{
		"targetUri": "file:///repo/pkg/thing.go",
		"targetRange": {"start": {"line": 3, "character": 0}, "end": {"line": 20, "character": 1}},
		"targetSelectionRange": {"start": {"line": 3, "character": 5}, "end": {"line": 3, "character": 10}}
	}]`)

	locs, err := parseLocations(raw)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "/repo/pkg/thing.go", locs[0].Path)
	require.Equal(t, 4, locs[0].Line)
	require.Equal(t, 6, locs[0].Column)
}

func TestParseLocationsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseLocations(json.RawMessage(`[42]`))
	require.Error(t, err)
}

func TestParseDocumentSymbolsHierarchical(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`[{
		"name": "Server",
		"kind": 23,
		"detail": "struct",
		"range": {"start": {"line": 4, "character": 0}, "end": {"line": 30, "character": 1}},
		"selectionRange": {"start": {"line": 4, "character": 5}, "end": {"line": 4, "character": 11}},
		"children": [{
			"name": "Run",
			"kind": 6,
			"range": {"start": {"line": 10, "character": 0}, "end": {"line": 20, "character": 1}},
			"selectionRange": {"start": {"line": 10, "character": 18}, "end": {"line": 10, "character": 21}}
		}]
	}]`)

	syms, err := parseDocumentSymbols(raw, "/repo/server.go")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	require.Equal(t, "Server", syms[0].Name)
	require.Equal(t, "Server.Run", syms[1].Name)
	require.Equal(t, 11, syms[1].Location.Line)
	require.Equal(t, "/repo/server.go", syms[1].Location.Path)
}

func TestParseDocumentSymbolsFlat(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`[{
		"name": "handleQuery",
		"kind": 12,
		"location": {
			"uri": "file:///repo/handler.go",
			"range": {"start": {"line": 14, "character": 5}, "end": {"line": 14, "character": 16}}
		}
	}]`)

	syms, err := parseDocumentSymbols(raw, "/repo/handler.go")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, "handleQuery", syms[0].Name)
	require.Equal(t, 15, syms[0].Location.Line)
}

func TestParseDocumentSymbolsEmpty(t *testing.T) {
	t.Parallel()

	syms, err := parseDocumentSymbols(json.RawMessage(`null`), "/repo/x.go")
	require.NoError(t, err)
	require.Empty(t, syms)
}
