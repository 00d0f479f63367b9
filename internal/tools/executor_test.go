package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasonbot/be-your-own-rag/internal/llm"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/demo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {\n\thandle()\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "internal", "handle.go"), []byte("package internal\n\nfunc handle() {}\n"), 0o644))

	// pool stays nil: any call slipping past validation into the language
	// server path would panic and fail the test loudly.
	ex := NewExecutor(NewRegistry(), nil, nil, nil, 0, 0)
	rt, err := ex.NewRuntime(root)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:   "call_" + name,
		Type: "function",
		Function: llm.ToolFunctionCall{
			Name:      name,
			Arguments: json.RawMessage(args),
		},
	}
}

func TestExecuteReturnsOneResultPerCallInOrder(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	calls := []llm.ToolCall{
		call(ToolListFiles, `{}`),
		call(ToolReadFile, `{"path":"main.go"}`),
		call(ToolFindInRepo, `{"query":"handle"}`),
	}

	results, err := rt.Execute(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, len(calls))
	for i, res := range results {
		require.Equal(t, calls[i].ID, res.CallID)
		require.Equal(t, calls[i].Function.Name, res.Name)
		require.False(t, res.IsError)
	}
	require.Contains(t, results[1].Content, "package main")
	require.Contains(t, results[2].Content, "main.go:4:2")
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	results, err := rt.Execute(context.Background(), []llm.ToolCall{
		call("delete_everything", `{}`),
	})
	require.NoError(t, err)
	require.True(t, results[0].IsError)
	require.Contains(t, results[0].Content, "unknown tool")
}

func TestExecuteInvalidArgumentsNeverReachServer(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	cases := []llm.ToolCall{
		// missing line/column, wrong argument type, unparseable payload,
		// and an argument the schema does not declare.
		call(ToolReferences, `{"path":"main.go"}`),
		call(ToolReferences, `{"path":"main.go","line":"x","column":1}`),
		call(ToolHover, `not json`),
		call(ToolReadFile, `{"path":"main.go","extra":true}`),
	}

	results, err := rt.Execute(context.Background(), cases)
	require.NoError(t, err)
	for _, res := range results {
		require.True(t, res.IsError, "expected error result for %s", res.Name)
		require.Contains(t, res.Content, "error:")
	}
}

func TestExecuteFileErrorsAreRecoverable(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	results, err := rt.Execute(context.Background(), []llm.ToolCall{
		call(ToolReadFile, `{"path":"nope.go"}`),
		call(ToolReadFile, `{"path":"../escape.go"}`),
	})
	require.NoError(t, err)
	require.True(t, results[0].IsError)
	require.True(t, results[1].IsError)
}

func TestExecuteTruncatesLargeOutput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.go"), []byte("package big\n// "+strings.Repeat("a", 4096)), 0o644))

	ex := NewExecutor(NewRegistry(), nil, nil, nil, 64, 0)
	rt, err := ex.NewRuntime(root)
	require.NoError(t, err)
	defer rt.Close()

	results, err := rt.Execute(context.Background(), []llm.ToolCall{
		call(ToolReadFile, `{"path":"big.go"}`),
	})
	require.NoError(t, err)
	require.False(t, results[0].IsError)
	require.Contains(t, results[0].Content, "[truncated]")
	require.Less(t, len(results[0].Content), 128)
}

func TestExecuteMemoizesRepeatedCalls(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main // v1\n"), 0o644))

	ex := NewExecutor(NewRegistry(), nil, nil, nil, 0, 0)
	rt, err := ex.NewRuntime(root)
	require.NoError(t, err)
	defer rt.Close()

	results, err := rt.Execute(context.Background(), []llm.ToolCall{
		call(ToolReadFile, `{"path":"main.go"}`),
	})
	require.NoError(t, err)
	require.Contains(t, results[0].Content, "v1")

	// Rewriting the file must not show through: within one query the
	// runtime answers a repeated call from its memo, not from disk.
	require.NoError(t, os.WriteFile(path, []byte("package main // v2\n"), 0o644))

	results, err = rt.Execute(context.Background(), []llm.ToolCall{
		call(ToolReadFile, `{"path":"main.go"}`),
	})
	require.NoError(t, err)
	require.Contains(t, results[0].Content, "v1")
}

func TestExecuteDoesNotMemoizeFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/demo\n"), 0o644))

	ex := NewExecutor(NewRegistry(), nil, nil, nil, 0, 0)
	rt, err := ex.NewRuntime(root)
	require.NoError(t, err)
	defer rt.Close()

	results, err := rt.Execute(context.Background(), []llm.ToolCall{
		call(ToolReadFile, `{"path":"later.go"}`),
	})
	require.NoError(t, err)
	require.True(t, results[0].IsError)

	// Once the file exists, the retried call must reach the workspace again.
	require.NoError(t, os.WriteFile(filepath.Join(root, "later.go"), []byte("package later\n"), 0o644))

	results, err = rt.Execute(context.Background(), []llm.ToolCall{
		call(ToolReadFile, `{"path":"later.go"}`),
	})
	require.NoError(t, err)
	require.False(t, results[0].IsError)
	require.Contains(t, results[0].Content, "package later")
}

func TestRuntimeCloseIdempotent(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t)
	rt.Close()
	rt.Close()
}
