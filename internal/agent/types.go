package agent

// Query is a single question about a codebase. It is immutable and consumed
// by exactly one loop run.
type Query struct {
	Question string
	Root     string
	Model    string
}

// State tracks where a query is in its lifecycle.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Result is the final outcome of a query.
type Result struct {
	Answer       string
	Turns        int
	State        State
	FinishReason string
	Model        string
}

// EventType labels streamed progress events.
type EventType string

const (
	EventNote       EventType = "note"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventAnswer     EventType = "answer"
)

// Event is a progress notification emitted while a query runs.
type Event struct {
	Type    EventType
	Turn    int
	Tool    string
	CallID  string
	Content string
	IsError bool
}

// EventSink receives progress events. May be nil.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
