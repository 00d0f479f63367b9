package lsp

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a language server request that exceeded its deadline.
	ErrTimeout = errors.New("language server request timed out")
	// ErrSessionClosed is returned when a request races a shutdown.
	ErrSessionClosed = errors.New("language server session closed")
	// ErrUnsupportedLanguage is returned when no server is configured for a root.
	ErrUnsupportedLanguage = errors.New("no language server configured for workspace")
)

// StartError wraps a failure to spawn or initialize a language server.
// It is fatal for the query that triggered the start.
type StartError struct {
	Language string
	Root     string
	Err      error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s language server for %s: %v", e.Language, e.Root, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// CallError is a JSON-RPC level error returned by the server for a single
// request. It is recoverable: the query continues and the failure is
// reported back to the model.
type CallError struct {
	Method  string
	Code    int32
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: server error %d: %s", e.Method, e.Code, e.Message)
}
