package tools

import "github.com/jasonbot/be-your-own-rag/internal/llm"

// Registry holds the fixed set of tool schemas advertised to the model.
// It is populated once at startup and read-only afterwards.
type Registry struct {
	schemas []Schema
	byName  map[string]Schema
}

// NewRegistry builds the default registry.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Schema)}
	for _, s := range defaultSchemas() {
		r.schemas = append(r.schemas, s)
		r.byName[s.Name] = s
	}
	return r
}

// Schemas returns every registered schema in declaration order.
func (r *Registry) Schemas() []Schema {
	return r.schemas
}

// Schema returns the schema for a tool name if present.
func (r *Registry) Schema(name string) (Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// ToolSpecs renders all schemas in provider wire format.
func (r *Registry) ToolSpecs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.schemas))
	for _, s := range r.schemas {
		specs = append(specs, s.ToolSpec())
	}
	return specs
}
