package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jasonbot/be-your-own-rag/internal/observability"
)

// SessionConfig carries everything needed to run one server process.
type SessionConfig struct {
	Language       LanguageConfig
	Root           string
	StartupTimeout time.Duration
	RequestTimeout time.Duration
	Metrics        *observability.Metrics
}

// Session owns a single language server process and its JSON-RPC connection.
// Responses are correlated to requests by id, so slow and fast calls may
// complete in any order without mixing up results.
type Session struct {
	cfg    SessionConfig
	logger *zap.Logger

	conn jsonrpc2.Conn
	cmd  *exec.Cmd
	caps protocol.ServerCapabilities

	mu       sync.Mutex
	openDocs map[uri.URI]int32

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewSession creates a session that has not been started yet.
func NewSession(cfg SessionConfig, logger *zap.Logger) *Session {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		cfg:      cfg,
		logger:   logger.With(zap.String("language", cfg.Language.Language), zap.String("root", cfg.Root)),
		openDocs: make(map[uri.URI]int32),
		closed:   make(chan struct{}),
	}
}

// stdioPipe adapts the child process stdio to a single ReadWriteCloser for
// the jsonrpc2 stream.
type stdioPipe struct {
	in  io.WriteCloser
	out io.ReadCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.out.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.in.Write(b) }
func (p stdioPipe) Close() error {
	return multierr.Append(p.in.Close(), p.out.Close())
}

// Start spawns the server process and runs the initialize handshake. Any
// failure here is fatal for the query that triggered it.
func (s *Session) Start(ctx context.Context) error {
	cmd := exec.Command(s.cfg.Language.Command, s.cfg.Language.Args...)
	cmd.Dir = s.cfg.Root
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &StartError{Language: s.cfg.Language.Language, Root: s.cfg.Root, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &StartError{Language: s.cfg.Language.Language, Root: s.cfg.Root, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &StartError{Language: s.cfg.Language.Language, Root: s.cfg.Root, Err: err}
	}
	s.cmd = cmd

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(stdioPipe{in: stdin, out: stdout}))
	conn.Go(ctx, s.handleServerRequest)
	s.conn = conn

	if err := s.initialize(ctx); err != nil {
		_ = conn.Close()
		_ = cmd.Process.Kill()
		return &StartError{Language: s.cfg.Language.Language, Root: s.cfg.Root, Err: err}
	}

	s.logger.Info("language server ready", zap.String("command", s.cfg.Language.Command))
	return nil
}

func (s *Session) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	rootURI := uri.File(s.cfg.Root)
	params := protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name: "byor",
		},
		RootURI: rootURI,
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: string(rootURI), Name: "workspace"},
		},
		Capabilities: protocol.ClientCapabilities{},
	}

	var result protocol.InitializeResult
	if _, err := s.conn.Call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("initialize: %w", ErrTimeout)
		}
		return fmt.Errorf("initialize: %w", err)
	}
	s.caps = result.Capabilities

	if err := s.conn.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{}); err != nil {
		return fmt.Errorf("initialized: %w", err)
	}

	return nil
}

// handleServerRequest answers server-to-client traffic. Diagnostics and log
// notifications are sunk; unsupported requests get MethodNotFound so the
// server does not hang waiting for a reply.
func (s *Session) handleServerRequest(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case protocol.MethodWindowLogMessage, protocol.MethodWindowShowMessage:
		var params protocol.LogMessageParams
		if err := json.Unmarshal(req.Params(), &params); err == nil {
			s.logger.Debug("server message", zap.String("message", params.Message))
		}
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentPublishDiagnostics, protocol.MethodTelemetryEvent, "$/progress":
		return reply(ctx, nil, nil)
	case protocol.MethodWorkspaceConfiguration:
		var params protocol.ConfigurationParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, fmt.Errorf("%s: %w", jsonrpc2.ErrParse, err))
		}
		return reply(ctx, make([]interface{}, len(params.Items)), nil)
	case protocol.MethodClientRegisterCapability, protocol.MethodClientUnregisterCapability:
		return reply(ctx, nil, nil)
	default:
		return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
	}
}

// Call issues a request bounded by the configured per-request timeout.
// Server-reported errors come back as *CallError; deadline hits wrap
// ErrTimeout.
func (s *Session) Call(ctx context.Context, method string, params, result interface{}) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if _, err := s.conn.Call(ctx, method, params, result); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			s.cfg.Metrics.RecordLspRequest(method, "error")
			return &CallError{Method: method, Code: int32(rpcErr.Code), Message: rpcErr.Message}
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.cfg.Metrics.RecordLspRequest(method, "timeout")
			return fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		s.cfg.Metrics.RecordLspRequest(method, "error")
		return fmt.Errorf("%s: %w", method, err)
	}
	s.cfg.Metrics.RecordLspRequest(method, "ok")
	return nil
}

// OpenDocument sends textDocument/didOpen once per file so position-based
// requests can resolve against server-side state.
func (s *Session) OpenDocument(ctx context.Context, path string) error {
	docURI := uri.File(path)

	s.mu.Lock()
	if _, ok := s.openDocs[docURI]; ok {
		s.mu.Unlock()
		return nil
	}
	s.openDocs[docURI] = 1
	s.mu.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		s.mu.Lock()
		delete(s.openDocs, docURI)
		s.mu.Unlock()
		return fmt.Errorf("read %s: %w", path, err)
	}

	params := protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        docURI,
			LanguageID: protocol.LanguageIdentifier(s.cfg.Language.Language),
			Version:    1,
			Text:       string(content),
		},
	}
	if err := s.conn.Notify(ctx, protocol.MethodTextDocumentDidOpen, params); err != nil {
		s.mu.Lock()
		delete(s.openDocs, docURI)
		s.mu.Unlock()
		return fmt.Errorf("didOpen %s: %w", path, err)
	}
	return nil
}

// Close shuts the server down exactly once. Cleanup errors are aggregated
// and reported, never panicking and never racing a second Close.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs error
		if s.conn != nil {
			if _, err := s.conn.Call(ctx, protocol.MethodShutdown, nil, nil); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("shutdown: %w", err))
			}
			if err := s.conn.Notify(ctx, protocol.MethodExit, nil); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("exit: %w", err))
			}
			if err := s.conn.Close(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("close conn: %w", err))
			}
		}

		if s.cmd != nil && s.cmd.Process != nil {
			done := make(chan error, 1)
			go func() { done <- s.cmd.Wait() }()
			select {
			case <-done:
			case <-time.After(3 * time.Second):
				if err := s.cmd.Process.Kill(); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("kill server: %w", err))
				}
				<-done
			}
		}

		s.closeErr = errs
		s.logger.Info("language server stopped")
	})
	return s.closeErr
}

// Capabilities returns the server capabilities reported at initialize time.
func (s *Session) Capabilities() protocol.ServerCapabilities {
	return s.caps
}
