package query

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasonbot/be-your-own-rag/internal/agent"
	"github.com/jasonbot/be-your-own-rag/internal/rpc"
)

func TestStreamHandlerStreamsNDJSON(t *testing.T) {
	handler := NewStreamHandler(EchoRunner{}, nil)
	body := bytes.NewBufferString(`{"session_id":"test","question":"hello world"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []rpc.QueryEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.QueryEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		events = append(events, evt)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, "done", last.Type)
	require.True(t, last.Done)
	require.Equal(t, "test", last.SessionID)
}

func TestStreamHandlerRejectsGet(t *testing.T) {
	handler := NewStreamHandler(EchoRunner{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/query/stream", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStreamHandlerRejectsBadJSON(t *testing.T) {
	handler := NewStreamHandler(EchoRunner{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSyncHandlerReturnsAnswer(t *testing.T) {
	loop := &fakeLoop{
		events: []agent.Event{
			{Type: agent.EventAnswer, Turn: 1, Content: "it parses config"},
		},
		result: agent.Result{Answer: "it parses config", Turns: 1, State: agent.StateDone, FinishReason: "answer", Model: "fast"},
	}
	handler := NewSyncHandler(&LoopRunner{Loop: loop}, nil)

	body := bytes.NewBufferString(`{"question":"what does main do?","root":"/repo"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp rpc.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "it parses config", resp.Answer)
	require.Equal(t, 1, resp.Turns)
	require.Equal(t, "answer", resp.FinishReason)
	require.Equal(t, "fast", resp.Model)
}

func TestSyncHandlerSurfacesQueryFailure(t *testing.T) {
	loop := &fakeLoop{
		result: agent.Result{Turns: 10, State: agent.StateFailed, FinishReason: "turn_limit"},
		err:    agent.ErrTurnLimit,
	}
	handler := NewSyncHandler(&LoopRunner{Loop: loop}, nil)

	body := bytes.NewBufferString(`{"question":"q"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "turn limit")
}
