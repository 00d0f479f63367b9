package query

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasonbot/be-your-own-rag/internal/agent"
	"github.com/jasonbot/be-your-own-rag/internal/rpc"
)

// fakeLoop implements Answerer with a canned event script.
type fakeLoop struct {
	events []agent.Event
	result agent.Result
	err    error

	gotQuery agent.Query
}

func (f *fakeLoop) Answer(ctx context.Context, q agent.Query, sink agent.EventSink) (agent.Result, error) {
	f.gotQuery = q
	for _, e := range f.events {
		if sink != nil {
			sink(e)
		}
	}
	return f.result, f.err
}

func collect(t *testing.T, ch <-chan rpc.QueryEvent) []rpc.QueryEvent {
	t.Helper()
	var out []rpc.QueryEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestLoopRunnerStreamsEventsInOrder(t *testing.T) {
	loop := &fakeLoop{
		events: []agent.Event{
			{Type: agent.EventToolCall, Turn: 1, Tool: "read_file", CallID: "call_0"},
			{Type: agent.EventToolResult, Turn: 1, Tool: "read_file", CallID: "call_0", Content: "package main"},
			{Type: agent.EventAnswer, Turn: 2, Content: "the answer"},
		},
		result: agent.Result{Answer: "the answer", Turns: 2, State: agent.StateDone, FinishReason: "answer", Model: "fast"},
	}
	runner := &LoopRunner{Loop: loop}

	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	ch, err := runner.Run(req, rpc.QueryRequest{SessionID: "s1", CorrelationID: "c1", Question: "q", Root: "/repo"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 4)
	require.Equal(t, "tool_call", events[0].Type)
	require.Equal(t, "tool_result", events[1].Type)
	require.Equal(t, "answer", events[2].Type)
	require.Equal(t, "done", events[3].Type)
	require.True(t, events[3].Done)
	require.Equal(t, 2, events[3].Turns)
	require.Equal(t, "fast", events[3].Model)

	for _, ev := range events {
		require.Equal(t, "s1", ev.SessionID)
		require.Equal(t, "c1", ev.CorrelationID)
	}
}

func TestLoopRunnerReportsFailure(t *testing.T) {
	loop := &fakeLoop{
		result: agent.Result{Turns: 3, State: agent.StateFailed, FinishReason: "turn_limit"},
		err:    agent.ErrTurnLimit,
	}
	runner := &LoopRunner{Loop: loop}

	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	ch, err := runner.Run(req, rpc.QueryRequest{SessionID: "s2", Question: "q"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	require.Equal(t, "error", events[0].Type)
	require.True(t, events[0].Done)
	require.Equal(t, "turn_limit", events[0].FinishReason)
	require.Contains(t, events[0].Error, "turn limit")
}

func TestLoopRunnerAppliesDefaultRoot(t *testing.T) {
	loop := &fakeLoop{result: agent.Result{State: agent.StateDone, FinishReason: "answer"}}
	runner := &LoopRunner{Loop: loop, DefaultRoot: "/srv/repo"}

	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	ch, err := runner.Run(req, rpc.QueryRequest{Question: "q"})
	require.NoError(t, err)
	collect(t, ch)

	require.Equal(t, "/srv/repo", loop.gotQuery.Root)
}

func TestLoopRunnerStopsOnCancelledClient(t *testing.T) {
	loop := &fakeLoop{
		events: []agent.Event{
			{Type: agent.EventNote, Turn: 1, Content: "working"},
			{Type: agent.EventNote, Turn: 2, Content: "still working"},
		},
		result: agent.Result{State: agent.StateFailed, FinishReason: "model_error"},
		err:    errors.New("context canceled"),
	}
	runner := &LoopRunner{Loop: loop}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(ctx)

	ch, err := runner.Run(req, rpc.QueryRequest{Question: "q"})
	require.NoError(t, err)

	// Nothing blocks; the channel drains and closes even with no reader
	// keeping up.
	collect(t, ch)
}
