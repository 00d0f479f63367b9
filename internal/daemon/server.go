package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/jasonbot/be-your-own-rag/internal/agent"
	"github.com/jasonbot/be-your-own-rag/internal/config"
	"github.com/jasonbot/be-your-own-rag/internal/llm/configbuilder"
	"github.com/jasonbot/be-your-own-rag/internal/lsp"
	"github.com/jasonbot/be-your-own-rag/internal/observability"
	queryrpc "github.com/jasonbot/be-your-own-rag/internal/rpc/query"
	toolrpc "github.com/jasonbot/be-your-own-rag/internal/rpc/tools"
	"github.com/jasonbot/be-your-own-rag/internal/tools"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the query endpoints plus health and metrics.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  queryrpc.Runner
	metrics *observability.Metrics
	tools   *tools.Registry
	pool    *lsp.Pool
}

// NewServer constructs a daemon instance.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	metrics := observability.NewMetrics()

	langs := lsp.NewConfigRegistry()
	for name, sc := range cfg.LSP.Servers {
		langs.Register(lsp.LanguageConfig{
			Language:   name,
			Command:    sc.Command,
			Args:       sc.Args,
			Extensions: sc.Extensions,
		})
	}
	pool := lsp.NewPool(lsp.PoolConfig{
		StartupTimeout: cfg.LSP.StartupTimeout,
		RequestTimeout: cfg.LSP.RequestTimeout,
		IdleTimeout:    cfg.LSP.IdleTimeout,
		Metrics:        metrics,
	}, langs, logger)

	toolRegistry := tools.NewRegistry()
	executor := tools.NewExecutor(toolRegistry, pool, metrics, logger, cfg.Agent.MaxToolOutputBytes, cfg.Workspace.MaxFileBytes)
	loop := agent.New(registry, executor, cfg.Agent, metrics, logger)
	runner := &queryrpc.LoopRunner{Loop: loop, DefaultRoot: cfg.Workspace.DefaultRoot, Logger: logger}

	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics, tools: toolRegistry, pool: pool}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/tools/schemas", toolrpc.SchemaHandler{Registry: s.tools})
	mux.Handle("/v1/query", queryrpc.NewSyncHandler(s.runner, s.metrics))

	switch strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) {
	case "ndjson":
		mux.Handle("/v1/query/stream", queryrpc.NewStreamHandler(s.runner, s.metrics))
	default:
		path, handler := queryrpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
		// keep the NDJSON path available for clients without HTTP/2
		mux.Handle("/v1/query/stream", queryrpc.NewStreamHandler(s.runner, s.metrics))
	}

	handler := http.Handler(mux)
	if strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting byor daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down byor daemon")
	case err := <-errCh:
		_ = s.pool.Close()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = s.pool.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if err := s.pool.Close(); err != nil {
		s.logger.Warn("closing language servers", zap.Error(err))
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
