package query

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/jasonbot/be-your-own-rag/internal/observability"
	"github.com/jasonbot/be-your-own-rag/internal/rpc"
	"github.com/jasonbot/be-your-own-rag/internal/rpc/connectjson"
)

const ConnectQueryProcedure = "/connect.query.v1.QueryService/Run"

// NewConnectHandler builds a Connect bidi stream handler for queries.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectQueryHandler{runner: runner, metrics: metrics}
	return ConnectQueryProcedure, connect.NewBidiStreamHandler(ConnectQueryProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectQueryHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectQueryHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.QueryStreamRequest, rpc.QueryEvent]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Query == nil {
		h.metrics.RecordTransportError("connect", "missing_query")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include query payload"))
	}

	req := *first.Query
	fillIdentifiers(&req)

	// Listen for cancellation messages from the client.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				if !errors.Is(recvErr, context.Canceled) {
					h.metrics.RecordTransportError("connect", "receive_stream")
				}
				cancel()
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	httpReq := (&http.Request{}).WithContext(ctx)

	events, runErr := h.runner.Run(httpReq, req)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		return connect.NewError(connect.CodeInternal, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			return err
		}
	}
	return nil
}
