package rpc

// QueryRequest asks one natural-language question about a codebase.
type QueryRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Question      string `json:"question"`
	Root          string `json:"root,omitempty"`
	Model         string `json:"model,omitempty"`
}

// QueryEvent streams back progress from the daemon.
type QueryEvent struct {
	Type          string `json:"type"` // note|tool_call|tool_result|answer|error|done
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Turn          int    `json:"turn,omitempty"`
	Tool          string `json:"tool,omitempty"`
	CallID        string `json:"call_id,omitempty"`
	Content       string `json:"content,omitempty"`
	IsError       bool   `json:"is_error,omitempty"`
	Error         string `json:"error,omitempty"`
	Done          bool   `json:"done,omitempty"`
	FinishReason  string `json:"finish_reason,omitempty"`
	Turns         int    `json:"turns,omitempty"`
	Model         string `json:"model,omitempty"`
}

// QueryResponse is the synchronous answer payload.
type QueryResponse struct {
	Answer       string `json:"answer"`
	Turns        int    `json:"turns"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model,omitempty"`
}

// QueryStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry the query; subsequent messages can carry
// control signals.
type QueryStreamRequest struct {
	Query         *QueryRequest `json:"query,omitempty"`
	Cancel        bool          `json:"cancel,omitempty"`
	SessionID     string        `json:"session_id,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}
