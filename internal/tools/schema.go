package tools

import (
	"encoding/json"

	"github.com/jasonbot/be-your-own-rag/internal/llm"
)

// Tool names advertised to the model.
const (
	ToolListFiles        = "list_files"
	ToolReadFile         = "read_file"
	ToolFindInFile       = "find_in_file"
	ToolFindInRepo       = "find_in_repo"
	ToolDocumentSymbols  = "document_symbols"
	ToolWorkspaceSymbols = "workspace_symbols"
	ToolDefinition       = "definition"
	ToolReferences       = "references"
	ToolHover            = "hover"
)

// Schema describes a tool for JSON schema/tool-calling.
type Schema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []SchemaField `json:"parameters"`
}

// SchemaField describes a single parameter.
type SchemaField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSpec renders the schema as the JSON Schema object providers expect.
func (s Schema) ToolSpec() llm.ToolSpec {
	props := make(map[string]interface{}, len(s.Parameters))
	required := make([]string, 0, len(s.Parameters))
	for _, f := range s.Parameters {
		prop := map[string]interface{}{
			"type":        f.Type,
			"description": f.Description,
		}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	raw, _ := json.Marshal(schema)
	return llm.ToolSpec{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  raw,
	}
}

func defaultSchemas() []Schema {
	posFields := []SchemaField{
		{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
		{Name: "line", Type: "integer", Description: "1-based line number of the symbol", Required: true},
		{Name: "column", Type: "integer", Description: "1-based column number of the symbol", Required: true},
	}

	return []Schema{
		{
			Name:        ToolListFiles,
			Description: "List every file in the repository (hidden directories are skipped)",
			Parameters:  []SchemaField{},
		},
		{
			Name:        ToolReadFile,
			Description: "Read the full source of a file; use this as the source of truth",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
			},
		},
		{
			Name:        ToolFindInFile,
			Description: "Find case-insensitive occurrences of a string in one file, with 1-based line and column",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
				{Name: "query", Type: "string", Description: "Substring to search for", Required: true},
			},
		},
		{
			Name:        ToolFindInRepo,
			Description: "Find case-insensitive occurrences of a string across the whole repository",
			Parameters: []SchemaField{
				{Name: "query", Type: "string", Description: "Substring to search for", Required: true},
				{Name: "max_results", Type: "integer", Description: "Cap on returned matches", Required: false},
			},
		},
		{
			Name:        ToolDocumentSymbols,
			Description: "List the symbols (functions, types, methods) declared in a file",
			Parameters: []SchemaField{
				{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
			},
		},
		{
			Name:        ToolWorkspaceSymbols,
			Description: "Search symbols across the repository by name",
			Parameters: []SchemaField{
				{Name: "query", Type: "string", Description: "Symbol name or fragment", Required: true},
			},
		},
		{
			Name:        ToolDefinition,
			Description: "Jump to the definition of the symbol at a position",
			Parameters:  posFields,
		},
		{
			Name:        ToolReferences,
			Description: "List all references to the symbol at a position, declaration included",
			Parameters:  posFields,
		},
		{
			Name:        ToolHover,
			Description: "Show type signature and documentation for the symbol at a position",
			Parameters:  posFields,
		},
	}
}
