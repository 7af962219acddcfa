package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// registered pairs a tool with its schema compiled at registration time.
type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is the catalog of callable tools keyed by name. Registration
// happens at agent construction; afterwards the registry is read-only and
// safe for concurrent reads by many running conversations sharing one agent
// definition.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]registered{}}
}

// NewRegistryWith constructs a registry pre-populated with the given tools.
// It panics on duplicate names or malformed schemas, which are programming
// errors at construction time.
func NewRegistryWith(tools ...Tool) *Registry {
	r := NewRegistry()
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool to the catalog. It fails with *DuplicateToolError when
// the name is already present and rejects the reserved ask_human name. The
// tool's parameter schema is compiled here so malformed specs surface at
// construction rather than at call time.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == AskHuman {
		return fmt.Errorf("tool name %q is reserved for human-in-the-loop suspension", AskHuman)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return &DuplicateToolError{Name: name}
	}

	schema, err := compileSchema(t.Parameters())
	if err != nil {
		return fmt.Errorf("tool %q has invalid parameter schema: %w", name, err)
	}

	r.tools[name] = registered{tool: t, schema: schema}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Describe returns the tool catalog in stable name order for presentation to
// a gateway.
func (r *Registry) Describe() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.tools))
	for name, reg := range r.tools {
		specs = append(specs, Spec{
			Name:        name,
			Description: reg.tool.Description(),
			Parameters:  reg.tool.Parameters(),
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// compiled returns the pre-compiled schema for a registered tool.
func (r *Registry) compiled(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.schema, true
}

// compileSchema compiles a JSON-schema map into a validator. A nil schema
// defaults to an empty object schema accepting any arguments.
func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
