package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Location is a normalized, 1-based source position.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
}

// Symbol is a normalized symbol entry from document or workspace queries.
type Symbol struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail,omitempty"`
	Location Location
}

func (s *Session) position(path string, line, column int) protocol.TextDocumentPositionParams {
	// The wire protocol is 0-based; the tool surface is 1-based.
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(path)},
		Position: protocol.Position{
			Line:      uint32(line - 1),
			Character: uint32(column - 1),
		},
	}
}

// Definition resolves the definition sites for the symbol at a position.
func (s *Session) Definition(ctx context.Context, path string, line, column int) ([]Location, error) {
	if err := s.OpenDocument(ctx, path); err != nil {
		return nil, err
	}

	params := protocol.DefinitionParams{
		TextDocumentPositionParams: s.position(path, line, column),
	}
	var raw json.RawMessage
	if err := s.Call(ctx, protocol.MethodTextDocumentDefinition, params, &raw); err != nil {
		return nil, err
	}
	return parseLocations(raw)
}

// References lists all usages of the symbol at a position, declaration included.
func (s *Session) References(ctx context.Context, path string, line, column int) ([]Location, error) {
	if err := s.OpenDocument(ctx, path); err != nil {
		return nil, err
	}

	params := protocol.ReferenceParams{
		TextDocumentPositionParams: s.position(path, line, column),
		Context: protocol.ReferenceContext{
			IncludeDeclaration: true,
		},
	}
	var raw json.RawMessage
	if err := s.Call(ctx, protocol.MethodTextDocumentReferences, params, &raw); err != nil {
		return nil, err
	}
	return parseLocations(raw)
}

// Hover returns type and documentation text for the symbol at a position.
func (s *Session) Hover(ctx context.Context, path string, line, column int) (string, error) {
	if err := s.OpenDocument(ctx, path); err != nil {
		return "", err
	}

	params := protocol.HoverParams{
		TextDocumentPositionParams: s.position(path, line, column),
	}
	var raw json.RawMessage
	if err := s.Call(ctx, protocol.MethodTextDocumentHover, params, &raw); err != nil {
		return "", err
	}
	if isNull(raw) {
		return "", nil
	}

	var hover protocol.Hover
	if err := json.Unmarshal(raw, &hover); err != nil {
		return "", fmt.Errorf("decode hover: %w", err)
	}
	return hover.Contents.Value, nil
}

// DocumentSymbols lists the symbols declared in a single file.
func (s *Session) DocumentSymbols(ctx context.Context, path string) ([]Symbol, error) {
	if err := s.OpenDocument(ctx, path); err != nil {
		return nil, err
	}

	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri.File(path)},
	}
	var raw json.RawMessage
	if err := s.Call(ctx, protocol.MethodTextDocumentDocumentSymbol, params, &raw); err != nil {
		return nil, err
	}
	return parseDocumentSymbols(raw, path)
}

// WorkspaceSymbols queries symbols across the whole workspace by name.
func (s *Session) WorkspaceSymbols(ctx context.Context, query string) ([]Symbol, error) {
	params := protocol.WorkspaceSymbolParams{Query: query}
	var raw json.RawMessage
	if err := s.Call(ctx, protocol.MethodWorkspaceSymbol, params, &raw); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	var infos []protocol.SymbolInformation
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, fmt.Errorf("decode workspace symbols: %w", err)
	}

	out := make([]Symbol, 0, len(infos))
	for _, info := range infos {
		out = append(out, Symbol{
			Name:     info.Name,
			Kind:     info.Kind.String(),
			Location: fromProtocolLocation(info.Location),
		})
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

func fromProtocolLocation(loc protocol.Location) Location {
	return Location{
		Path:   loc.URI.Filename(),
		Line:   int(loc.Range.Start.Line) + 1,
		Column: int(loc.Range.Start.Character) + 1,
	}
}

// parseLocations accepts the three shapes servers answer location requests
// with: null, a single Location, an array of Locations, or LocationLinks.
func parseLocations(raw json.RawMessage) ([]Location, error) {
	if isNull(raw) {
		return nil, nil
	}

	var single protocol.Location
	if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
		return []Location{fromProtocolLocation(single)}, nil
	}

	var many []protocol.Location
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].URI != "" {
		out := make([]Location, 0, len(many))
		for _, loc := range many {
			out = append(out, fromProtocolLocation(loc))
		}
		return out, nil
	}

	var links []protocol.LocationLink
	if err := json.Unmarshal(raw, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		out := make([]Location, 0, len(links))
		for _, link := range links {
			out = append(out, Location{
				Path:   link.TargetURI.Filename(),
				Line:   int(link.TargetSelectionRange.Start.Line) + 1,
				Column: int(link.TargetSelectionRange.Start.Character) + 1,
			})
		}
		return out, nil
	}

	// An empty array is a valid "no results" answer.
	var anything []json.RawMessage
	if err := json.Unmarshal(raw, &anything); err == nil && len(anything) == 0 {
		return nil, nil
	}

	return nil, fmt.Errorf("unrecognized location payload: %s", truncatePayload(raw))
}

// parseDocumentSymbols handles both hierarchical DocumentSymbol trees and
// flat SymbolInformation lists. Children are flattened with qualified names.
func parseDocumentSymbols(raw json.RawMessage, path string) ([]Symbol, error) {
	if isNull(raw) {
		return nil, nil
	}

	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("unrecognized symbol payload: %s", truncatePayload(raw))
	}
	if len(probe) == 0 {
		return nil, nil
	}

	if _, hierarchical := probe[0]["selectionRange"]; hierarchical {
		var tree []protocol.DocumentSymbol
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("decode document symbols: %w", err)
		}
		var out []Symbol
		flattenSymbols(tree, "", path, &out)
		return out, nil
	}

	var infos []protocol.SymbolInformation
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, fmt.Errorf("decode symbol information: %w", err)
	}
	out := make([]Symbol, 0, len(infos))
	for _, info := range infos {
		out = append(out, Symbol{
			Name:     info.Name,
			Kind:     info.Kind.String(),
			Location: fromProtocolLocation(info.Location),
		})
	}
	return out, nil
}

func flattenSymbols(symbols []protocol.DocumentSymbol, prefix, path string, out *[]Symbol) {
	for _, sym := range symbols {
		name := sym.Name
		if prefix != "" {
			name = prefix + "." + name
		}
		*out = append(*out, Symbol{
			Name:   name,
			Kind:   sym.Kind.String(),
			Detail: sym.Detail,
			Location: Location{
				Path:   path,
				Line:   int(sym.SelectionRange.Start.Line) + 1,
				Column: int(sym.SelectionRange.Start.Character) + 1,
			},
		})
		flattenSymbols(sym.Children, name, path, out)
	}
}

func truncatePayload(raw json.RawMessage) string {
	const max = 200
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
