package agent

import (
	"errors"
	"fmt"
)

// ErrTurnLimit is returned when the model keeps requesting tools past the
// configured turn ceiling. No answer is fabricated in that case.
var ErrTurnLimit = errors.New("turn limit exceeded without a final answer")

// ErrEmptyQuestion rejects queries with no question text.
var ErrEmptyQuestion = errors.New("question is required")

// ModelError wraps a transport-level model failure after fallbacks are
// exhausted. Fatal for the query.
type ModelError struct {
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
