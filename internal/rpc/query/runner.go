package query

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jasonbot/be-your-own-rag/internal/agent"
	"github.com/jasonbot/be-your-own-rag/internal/rpc"
)

// Answerer runs one query to completion, emitting progress events.
type Answerer interface {
	Answer(ctx context.Context, q agent.Query, sink agent.EventSink) (agent.Result, error)
}

// LoopRunner bridges the agent loop to streamed RPC events.
type LoopRunner struct {
	Loop        Answerer
	DefaultRoot string
	Logger      *zap.Logger
}

// Run starts a query and streams its events. The channel closes after the
// terminal done or error event.
func (r *LoopRunner) Run(reqCtx *http.Request, req rpc.QueryRequest) (<-chan rpc.QueryEvent, error) {
	out := make(chan rpc.QueryEvent, 16)
	ctx := reqCtx.Context()

	emit := func(ev rpc.QueryEvent) {
		ev.SessionID = req.SessionID
		ev.CorrelationID = req.CorrelationID
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)

		root := req.Root
		if root == "" {
			root = r.DefaultRoot
		}

		res, err := r.Loop.Answer(ctx, agent.Query{
			Question: req.Question,
			Root:     root,
			Model:    req.Model,
		}, func(e agent.Event) {
			emit(rpc.QueryEvent{
				Type:    string(e.Type),
				Turn:    e.Turn,
				Tool:    e.Tool,
				CallID:  e.CallID,
				Content: e.Content,
				IsError: e.IsError,
			})
		})
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("query failed",
					zap.String("session_id", req.SessionID),
					zap.String("finish_reason", res.FinishReason),
					zap.Error(err))
			}
			emit(rpc.QueryEvent{
				Type:         "error",
				Error:        err.Error(),
				Done:         true,
				FinishReason: res.FinishReason,
				Turns:        res.Turns,
				Model:        res.Model,
			})
			return
		}

		emit(rpc.QueryEvent{
			Type:         "done",
			Done:         true,
			FinishReason: res.FinishReason,
			Turns:        res.Turns,
			Model:        res.Model,
		})
	}()

	return out, nil
}

// EchoRunner is a fallback runner that echoes question words as notes.
type EchoRunner struct{}

func (EchoRunner) Run(reqCtx *http.Request, req rpc.QueryRequest) (<-chan rpc.QueryEvent, error) {
	return queryEcho(req), nil
}

func queryEcho(req rpc.QueryRequest) <-chan rpc.QueryEvent {
	out := make(chan rpc.QueryEvent, 16)
	go func() {
		defer close(out)

		for i, w := range strings.Fields(req.Question) {
			out <- rpc.QueryEvent{
				Type:          "note",
				SessionID:     req.SessionID,
				CorrelationID: req.CorrelationID,
				Turn:          i + 1,
				Content:       w,
			}
		}

		out <- rpc.QueryEvent{
			Type:          "done",
			SessionID:     req.SessionID,
			CorrelationID: req.CorrelationID,
			Done:          true,
			FinishReason:  "answer",
		}
	}()
	return out
}
