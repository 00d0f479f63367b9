package agent

import (
	"strings"
)

// buildSystemPrompt returns the instruction set for the code question loop.
func buildSystemPrompt() string {
	return strings.TrimSpace(`
You are an expert code analysis assistant answering questions about a repository.
You cannot see the code directly; use the provided tools to inspect it.
Prefer precise lookups: find symbols first, then read the relevant files.
Use read_file as the source of truth before making claims about behavior.
When you have gathered enough evidence, answer in plain text with file and line references.
Do not guess. If the tools cannot establish an answer, say so.`)
}

// buildFileListPreamble renders the repository file listing seeded into the
// conversation so the model knows what exists before its first tool call.
func buildFileListPreamble(files []string) string {
	var b strings.Builder
	b.WriteString("Files in this repository:\n")
	b.WriteString(strings.Join(files, "\n"))
	return truncateForPrompt(b.String(), 24*1024)
}

func truncateForPrompt(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "... [truncated]"
}
