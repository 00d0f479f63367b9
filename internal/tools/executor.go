package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jasonbot/be-your-own-rag/internal/llm"
	"github.com/jasonbot/be-your-own-rag/internal/lsp"
	"github.com/jasonbot/be-your-own-rag/internal/observability"
	"github.com/jasonbot/be-your-own-rag/internal/workspace"

	"go.uber.org/zap"
)

// Result is the outcome of one tool call. Results are returned in the same
// order as the requests that produced them.
type Result struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Executor dispatches validated tool calls against workspace inspection and
// the language server pool.
type Executor struct {
	registry       *Registry
	pool           *lsp.Pool
	metrics        *observability.Metrics
	logger         *zap.Logger
	maxOutputBytes int
	maxFileBytes   int
}

// NewExecutor wires the executor. metrics may be nil.
func NewExecutor(registry *Registry, pool *lsp.Pool, metrics *observability.Metrics, logger *zap.Logger, maxOutputBytes, maxFileBytes int) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = 16 * 1024
	}
	return &Executor{
		registry:       registry,
		pool:           pool,
		metrics:        metrics,
		logger:         logger,
		maxOutputBytes: maxOutputBytes,
		maxFileBytes:   maxFileBytes,
	}
}

// Registry returns the executor's tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Runtime binds the executor to one query's workspace root. The language
// server lease is acquired on the first tool that needs it and handed back
// exactly once when the runtime closes. Successful tool results are
// memoized for the lifetime of the runtime, so a model that repeats a
// call it already made gets the first answer back without re-executing.
type Runtime struct {
	ex        *Executor
	inspector *workspace.Inspector

	mu    sync.Mutex
	lease *lsp.Lease

	cacheMu sync.Mutex
	cache   map[string]string

	closeOnce sync.Once
}

// NewRuntime prepares tool execution for a single query against root.
func (e *Executor) NewRuntime(root string) (*Runtime, error) {
	inspector, err := workspace.NewInspector(root, e.maxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	return &Runtime{ex: e, inspector: inspector, cache: make(map[string]string)}, nil
}

// Inspector exposes the runtime's workspace view.
func (rt *Runtime) Inspector() *workspace.Inspector {
	return rt.inspector
}

// Close releases the language server lease. Safe to call multiple times.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.mu.Lock()
		lease := rt.lease
		rt.lease = nil
		rt.mu.Unlock()
		if lease != nil {
			lease.Release()
		}
	})
}

func (rt *Runtime) session(ctx context.Context) (*lsp.Session, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.lease == nil {
		lease, err := rt.ex.pool.Acquire(ctx, rt.inspector.Root())
		if err != nil {
			return nil, err
		}
		rt.lease = lease
	}
	return rt.lease.Session(), nil
}

// Execute runs a batch of tool calls concurrently and returns results in
// request order. Recoverable failures (bad arguments, unknown tools, server
// protocol errors) come back as error-flagged results; only failures that
// doom the whole query (session start, timeouts, cancellation) return err.
func (rt *Runtime) Execute(ctx context.Context, calls []llm.ToolCall) ([]Result, error) {
	results := make([]Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for idx, call := range calls {
		idx, call := idx, call
		g.Go(func() error {
			res, err := rt.executeOne(gctx, call)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (rt *Runtime) executeOne(ctx context.Context, call llm.ToolCall) (Result, error) {
	name := call.Function.Name
	res := Result{CallID: call.ID, Name: name}

	args, err := DecodeArgs(call.Function.Arguments)
	if err == nil {
		err = rt.ex.registry.ValidateCall(name, args)
	}
	if err != nil {
		// Never reaches the language server; reported back to the model.
		rt.ex.metrics.RecordToolCall(name, "invalid")
		rt.ex.logger.Debug("rejected tool call", zap.String("tool", name), zap.Error(err))
		res.IsError = true
		res.Content = "error: " + err.Error()
		return res, nil
	}

	key, cacheable := cacheKey(name, args)
	if cacheable {
		if content, ok := rt.cached(key); ok {
			rt.ex.metrics.RecordToolCall(name, "cached")
			res.Content = content
			return res, nil
		}
	}

	out, err := rt.dispatch(ctx, name, args)
	if err != nil {
		if isFatal(err) {
			rt.ex.metrics.RecordToolCall(name, "fatal")
			return Result{}, err
		}
		rt.ex.metrics.RecordToolCall(name, "error")
		res.IsError = true
		res.Content = "error: " + err.Error()
		return res, nil
	}

	rt.ex.metrics.RecordToolCall(name, "ok")
	if out == "" {
		out = "(no results)"
	}
	res.Content = truncateOutput(out, rt.ex.maxOutputBytes)
	if cacheable {
		rt.store(key, res.Content)
	}
	return res, nil
}

// cacheKey folds a tool name and its decoded arguments into a memoization
// key. json.Marshal writes map keys in sorted order, so two calls with the
// same arguments produce the same key regardless of argument order.
func cacheKey(name string, args map[string]interface{}) (string, bool) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	return name + "\x00" + string(raw), true
}

func (rt *Runtime) cached(key string) (string, bool) {
	rt.cacheMu.Lock()
	defer rt.cacheMu.Unlock()
	content, ok := rt.cache[key]
	return content, ok
}

// store memoizes a successful result. Failures are never cached so a
// retried call gets a fresh attempt.
func (rt *Runtime) store(key, content string) {
	rt.cacheMu.Lock()
	rt.cache[key] = content
	rt.cacheMu.Unlock()
}

func isFatal(err error) bool {
	var startErr *lsp.StartError
	return errors.As(err, &startErr) ||
		errors.Is(err, lsp.ErrTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (rt *Runtime) dispatch(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	switch name {
	case ToolListFiles:
		files, err := rt.inspector.ListFiles()
		if err != nil {
			return "", err
		}
		return strings.Join(files, "\n"), nil

	case ToolReadFile:
		return rt.inspector.ReadFile(stringArg(args, "path"))

	case ToolFindInFile:
		matches, err := rt.inspector.FindInFile(stringArg(args, "path"), stringArg(args, "query"))
		if err != nil {
			return "", err
		}
		return formatMatches(matches), nil

	case ToolFindInRepo:
		matches, err := rt.inspector.FindInRepo(stringArg(args, "query"), intArg(args, "max_results"))
		if err != nil {
			return "", err
		}
		return formatMatches(matches), nil

	case ToolDocumentSymbols:
		abs, err := rt.inspector.Resolve(stringArg(args, "path"))
		if err != nil {
			return "", err
		}
		session, err := rt.session(ctx)
		if err != nil {
			return "", err
		}
		symbols, err := session.DocumentSymbols(ctx, abs)
		if err != nil {
			return "", err
		}
		return rt.formatSymbols(symbols), nil

	case ToolWorkspaceSymbols:
		session, err := rt.session(ctx)
		if err != nil {
			return "", err
		}
		symbols, err := session.WorkspaceSymbols(ctx, stringArg(args, "query"))
		if err != nil {
			return "", err
		}
		return rt.formatSymbols(symbols), nil

	case ToolDefinition:
		return rt.locationTool(ctx, args, (*lsp.Session).Definition)

	case ToolReferences:
		return rt.locationTool(ctx, args, (*lsp.Session).References)

	case ToolHover:
		abs, err := rt.inspector.Resolve(stringArg(args, "path"))
		if err != nil {
			return "", err
		}
		session, err := rt.session(ctx)
		if err != nil {
			return "", err
		}
		return session.Hover(ctx, abs, intArg(args, "line"), intArg(args, "column"))

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

type locationFn func(*lsp.Session, context.Context, string, int, int) ([]lsp.Location, error)

func (rt *Runtime) locationTool(ctx context.Context, args map[string]interface{}, fn locationFn) (string, error) {
	abs, err := rt.inspector.Resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	session, err := rt.session(ctx)
	if err != nil {
		return "", err
	}
	locs, err := fn(session, ctx, abs, intArg(args, "line"), intArg(args, "column"))
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(locs))
	for _, loc := range locs {
		lines = append(lines, rt.relativize(loc).String())
	}
	return strings.Join(lines, "\n"), nil
}

// relativize maps absolute server paths back to workspace-relative ones so
// the model sees the same paths it passes in.
func (rt *Runtime) relativize(loc lsp.Location) lsp.Location {
	root := rt.inspector.Root() + "/"
	if strings.HasPrefix(loc.Path, root) {
		loc.Path = strings.TrimPrefix(loc.Path, root)
	}
	return loc
}

func (rt *Runtime) formatSymbols(symbols []lsp.Symbol) string {
	lines := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		entry := fmt.Sprintf("%s (%s) %s", sym.Name, strings.ToLower(sym.Kind), rt.relativize(sym.Location))
		if sym.Detail != "" {
			entry += " " + sym.Detail
		}
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

func formatMatches(matches []workspace.Match) string {
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Path, m.Line, m.Column, m.Snippet))
	}
	return strings.Join(lines, "\n")
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]interface{}, name string) int {
	switch n := args[name].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		v, _ := strconv.Atoi(n)
		return v
	default:
		return 0
	}
}

func truncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... [truncated]"
}
