package agent

import (
	"github.com/jasonbot/be-your-own-rag/internal/llm"
)

const droppedNotice = "[earlier tool activity dropped to fit the context budget]"

// Conversation is the append-only message accumulator for one query. The
// system prompt and the original question are pinned; when the byte budget
// is exceeded, the oldest unpinned turns are dropped in whole rounds (an
// assistant message together with its tool results) and replaced with a
// single notice.
type Conversation struct {
	system llm.ChatMessage
	query  llm.ChatMessage

	turns    []llm.ChatMessage
	maxBytes int
	dropped  bool
}

// NewConversation pins the system prompt and user question.
func NewConversation(systemPrompt, question string, maxBytes int) *Conversation {
	return &Conversation{
		system:   llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt},
		query:    llm.ChatMessage{Role: llm.RoleUser, Content: question},
		maxBytes: maxBytes,
	}
}

// Append records messages in arrival order.
func (c *Conversation) Append(msgs ...llm.ChatMessage) {
	c.turns = append(c.turns, msgs...)
	c.enforceBudget()
}

// Len returns the number of unpinned messages.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Messages serializes the conversation for the next model call. The pinned
// system prompt and question always survive, in position.
func (c *Conversation) Messages() []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(c.turns)+3)
	out = append(out, c.system, c.query)
	if c.dropped {
		out = append(out, llm.ChatMessage{Role: llm.RoleUser, Content: droppedNotice})
	}
	out = append(out, c.turns...)
	return out
}

func (c *Conversation) enforceBudget() {
	if c.maxBytes <= 0 {
		return
	}
	for c.size() > c.maxBytes && len(c.turns) > 0 {
		c.dropOldestRound()
		c.dropped = true
	}
}

func (c *Conversation) size() int {
	n := len(c.system.Content) + len(c.query.Content)
	for _, m := range c.turns {
		n += len(m.Content)
		for _, tc := range m.ToolCalls {
			n += len(tc.Function.Name) + len(tc.Function.Arguments)
		}
	}
	return n
}

// dropOldestRound removes the first unpinned message; if it is an assistant
// turn carrying tool calls, its tool results go with it so the model never
// sees orphaned results.
func (c *Conversation) dropOldestRound() {
	if len(c.turns) == 0 {
		return
	}

	drop := 1
	if c.turns[0].Role == llm.RoleAssistant && len(c.turns[0].ToolCalls) > 0 {
		for drop < len(c.turns) && c.turns[drop].Role == llm.RoleTool {
			drop++
		}
	}
	c.turns = append([]llm.ChatMessage(nil), c.turns[drop:]...)
}
