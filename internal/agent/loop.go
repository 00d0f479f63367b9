package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jasonbot/be-your-own-rag/internal/config"
	"github.com/jasonbot/be-your-own-rag/internal/llm"
	"github.com/jasonbot/be-your-own-rag/internal/observability"
	"github.com/jasonbot/be-your-own-rag/internal/tools"
)

// Loop drives one query through alternating model calls and tool execution
// until the model answers in plain text or a limit trips.
type Loop struct {
	registry *llm.Registry
	executor *tools.Executor
	cfg      config.AgentConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// New wires the loop controller. metrics may be nil.
func New(registry *llm.Registry, executor *tools.Executor, cfg config.AgentConfig, metrics *observability.Metrics, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		registry: registry,
		executor: executor,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Answer runs a query to completion. Tool-level failures are folded back
// into the conversation as tool results; only session start failures, model
// transport failures, the turn ceiling, and cancellation abort the query.
func (l *Loop) Answer(ctx context.Context, q Query, sink EventSink) (Result, error) {
	started := time.Now()
	res, err := l.answer(ctx, q, sink)
	l.metrics.RecordQuery(res.FinishReason, time.Since(started), res.Turns)
	return res, err
}

func (l *Loop) answer(ctx context.Context, q Query, sink EventSink) (Result, error) {
	if q.Question == "" {
		return Result{State: StateFailed, FinishReason: "empty_question"}, ErrEmptyQuestion
	}

	provider, route, err := l.registry.Resolve(q.Model)
	if err != nil {
		return Result{State: StateFailed, FinishReason: "unknown_model"}, err
	}

	rt, err := l.executor.NewRuntime(q.Root)
	if err != nil {
		return Result{State: StateFailed, FinishReason: "workspace"}, err
	}
	defer rt.Close()

	conv := NewConversation(buildSystemPrompt(), q.Question, l.cfg.MaxContextBytes)
	if l.cfg.PreseedFileList {
		if files, err := rt.Inspector().ListFiles(); err == nil && len(files) > 0 {
			conv.Append(llm.ChatMessage{Role: llm.RoleAssistant, Content: buildFileListPreamble(files)})
		}
	}

	specs := l.executor.Registry().ToolSpecs()
	maxTurns := l.cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	usedFallback := false
	logger := l.logger.With(zap.String("root", q.Root), zap.String("model", route.Name))

	for turn := 1; turn <= maxTurns; turn++ {
		resp, err := provider.Chat(ctx, llm.ChatRequest{
			Model:       route.Model,
			Messages:    conv.Messages(),
			Tools:       specs,
			MaxTokens:   pickMaxTokens(l.cfg.MaxTokens, route.MaxTokens),
			Temperature: pickTemperature(l.cfg.Temperature, route.Temperature),
		})
		if err != nil {
			l.metrics.RecordModelFailure(route.Name)
			logger.Warn("model call failed", zap.Int("turn", turn), zap.Error(err))

			if fb := l.cfg.FallbackModel; fb != "" && fb != route.Name && !usedFallback {
				fbProvider, fbRoute, fbErr := l.registry.Resolve(fb)
				if fbErr == nil {
					provider, route = fbProvider, fbRoute
					usedFallback = true
					turn--
					continue
				}
			}
			return Result{Turns: turn, State: StateFailed, FinishReason: "model_error", Model: route.Name},
				&ModelError{Model: route.Name, Err: err}
		}

		conv.Append(resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			sink.emit(Event{Type: EventAnswer, Turn: turn, Content: resp.Message.Content})
			logger.Info("query answered", zap.Int("turns", turn))
			return Result{
				Answer:       resp.Message.Content,
				Turns:        turn,
				State:        StateDone,
				FinishReason: "answer",
				Model:        route.Name,
			}, nil
		}

		// Text alongside tool calls is provisional commentary, not the answer.
		if resp.Message.Content != "" {
			sink.emit(Event{Type: EventNote, Turn: turn, Content: resp.Message.Content})
		}
		for _, tc := range resp.Message.ToolCalls {
			sink.emit(Event{
				Type:    EventToolCall,
				Turn:    turn,
				Tool:    tc.Function.Name,
				CallID:  tc.ID,
				Content: string(tc.Function.Arguments),
			})
		}

		results, err := rt.Execute(ctx, resp.Message.ToolCalls)
		if err != nil {
			logger.Warn("tool execution aborted query", zap.Int("turn", turn), zap.Error(err))
			return Result{Turns: turn, State: StateFailed, FinishReason: "tool_fatal", Model: route.Name}, err
		}

		// One tool-result turn per call, in request order.
		for _, tr := range results {
			conv.Append(llm.ChatMessage{
				Role:       llm.RoleTool,
				Name:       tr.Name,
				ToolCallID: tr.CallID,
				Content:    tr.Content,
			})
			sink.emit(Event{
				Type:    EventToolResult,
				Turn:    turn,
				Tool:    tr.Name,
				CallID:  tr.CallID,
				Content: tr.Content,
				IsError: tr.IsError,
			})
		}
	}

	logger.Warn("turn limit exceeded", zap.Int("max_turns", maxTurns))
	return Result{Turns: maxTurns, State: StateFailed, FinishReason: "turn_limit", Model: route.Name}, ErrTurnLimit
}

func pickTemperature(agentTemp float64, routeTemp float64) float64 {
	if agentTemp > 0 {
		return agentTemp
	}
	if routeTemp > 0 {
		return routeTemp
	}
	return 0.2
}

func pickMaxTokens(agentMax int, routeMax int) int {
	if agentMax > 0 {
		return agentMax
	}
	if routeMax > 0 {
		return routeMax
	}
	return 0
}
