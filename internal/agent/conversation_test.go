package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasonbot/be-your-own-rag/internal/llm"
)

func toolRound(id, output string) []llm.ChatMessage {
	return []llm.ChatMessage{
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:       id,
				Type:     "function",
				Function: llm.ToolFunctionCall{Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
			}},
		},
		{Role: llm.RoleTool, Name: "read_file", ToolCallID: id, Content: output},
	}
}

func TestConversationKeepsOrder(t *testing.T) {
	t.Parallel()

	c := NewConversation("system", "question", 0)
	c.Append(toolRound("call_0", "first")...)
	c.Append(llm.ChatMessage{Role: llm.RoleAssistant, Content: "answer"})

	msgs := c.Messages()
	require.Equal(t, llm.RoleSystem, msgs[0].Role)
	require.Equal(t, "question", msgs[1].Content)
	require.Equal(t, llm.RoleAssistant, msgs[2].Role)
	require.Equal(t, llm.RoleTool, msgs[3].Role)
	require.Equal(t, "answer", msgs[4].Content)
}

func TestConversationTruncationNeverDropsQuery(t *testing.T) {
	t.Parallel()

	c := NewConversation("system", "the original question", 600)
	for i := 0; i < 10; i++ {
		c.Append(toolRound("call", strings.Repeat("x", 200))...)
	}

	msgs := c.Messages()
	require.Equal(t, "system", msgs[0].Content)
	require.Equal(t, "the original question", msgs[1].Content)
	require.Equal(t, droppedNotice, msgs[2].Content)

	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	require.LessOrEqual(t, total, 600+len(droppedNotice))
}

func TestConversationDropsWholeRounds(t *testing.T) {
	t.Parallel()

	c := NewConversation("s", "q", 500)
	c.Append(toolRound("call_a", strings.Repeat("a", 300))...)
	c.Append(toolRound("call_b", strings.Repeat("b", 300))...)

	// Oldest round must vanish as a unit: no tool result without its
	// requesting assistant turn.
	msgs := c.Messages()
	for i, m := range msgs {
		if m.Role == llm.RoleTool {
			require.Greater(t, i, 0)
			prev := msgs[i-1]
			require.True(t, prev.Role == llm.RoleAssistant && len(prev.ToolCalls) > 0,
				"tool result at %d is orphaned", i)
		}
		require.NotContains(t, m.Content, "aaa")
	}
}

func TestConversationUnlimitedWhenBudgetZero(t *testing.T) {
	t.Parallel()

	c := NewConversation("s", "q", 0)
	for i := 0; i < 50; i++ {
		c.Append(toolRound("call", strings.Repeat("y", 1000))...)
	}
	require.Equal(t, 100, c.Len())
}
