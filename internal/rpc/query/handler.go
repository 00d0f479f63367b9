package query

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jasonbot/be-your-own-rag/internal/observability"
	"github.com/jasonbot/be-your-own-rag/internal/rpc"
)

// Runner executes a query and yields streamed events.
type Runner interface {
	Run(r *http.Request, req rpc.QueryRequest) (<-chan rpc.QueryEvent, error)
}

// StreamHandler processes query requests and streams NDJSON events.
type StreamHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

// NewStreamHandler constructs a streaming handler.
func NewStreamHandler(runner Runner, metrics *observability.Metrics) *StreamHandler {
	return &StreamHandler{runner: runner, metrics: metrics}
}

// ServeHTTP handles POST /v1/query/stream with an NDJSON stream of QueryEvent.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordTransportError("ndjson", "method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.metrics.IncActiveSessions("ndjson")
	defer h.metrics.DecActiveSessions("ndjson")

	var req rpc.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordTransportError("ndjson", "decode")
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	fillIdentifiers(&req)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	var events <-chan rpc.QueryEvent
	if h.runner != nil {
		ev, err := h.runner.Run(r, req)
		if err != nil {
			h.metrics.RecordTransportError("ndjson", "runner_error")
			http.Error(w, fmt.Sprintf("runner error: %v", err), http.StatusInternalServerError)
			return
		}
		events = ev
	} else {
		events = queryEcho(req)
	}

	writer := bufio.NewWriter(w)
	for ev := range events {
		if err := json.NewEncoder(writer).Encode(ev); err != nil {
			break
		}
		writer.Flush()
		flusher.Flush()
	}
}

// SyncHandler answers POST /v1/query with a single JSON response.
type SyncHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

// NewSyncHandler constructs a blocking request/response handler.
func NewSyncHandler(runner Runner, metrics *observability.Metrics) *SyncHandler {
	return &SyncHandler{runner: runner, metrics: metrics}
}

// ServeHTTP consumes the event stream internally and replies with the final
// answer once the query finishes.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordTransportError("sync", "method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.metrics.IncActiveSessions("sync")
	defer h.metrics.DecActiveSessions("sync")

	var req rpc.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordTransportError("sync", "decode")
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	fillIdentifiers(&req)

	events, err := h.runner.Run(r, req)
	if err != nil {
		h.metrics.RecordTransportError("sync", "runner_error")
		http.Error(w, fmt.Sprintf("runner error: %v", err), http.StatusInternalServerError)
		return
	}

	var resp rpc.QueryResponse
	for ev := range events {
		switch ev.Type {
		case "answer":
			resp.Answer = ev.Content
		case "error":
			h.metrics.RecordTransportError("sync", "query_error")
			http.Error(w, ev.Error, http.StatusBadGateway)
			return
		case "done":
			resp.Turns = ev.Turns
			resp.FinishReason = ev.FinishReason
			resp.Model = ev.Model
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func fillIdentifiers(req *rpc.QueryRequest) {
	if req.SessionID == "" {
		req.SessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	if req.CorrelationID == "" {
		req.CorrelationID = req.SessionID + "-corr"
	}
}
