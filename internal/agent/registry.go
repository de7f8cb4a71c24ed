package agent

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry manages available tools. Registration happens at startup; lookups
// on the hot path read an immutable snapshot through an atomic pointer, so
// they take no lock.
type Registry struct {
	mu       sync.Mutex // serializes writers only
	snapshot atomic.Pointer[registrySnapshot]
}

type registrySnapshot struct {
	tools   map[string]*registeredTool
	ordered []string
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
	raw    json.RawMessage
}

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// NewRegistry creates a new empty tool registry ready for registration.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(&registrySnapshot{tools: map[string]*registeredTool{}})
	return r
}

// Register adds a tool to the registry by its name. The tool's JSON schema is
// compiled here so malformed schemas fail at startup, not at call time.
// Returns ErrDuplicateTool if the name is already taken.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}

	raw := tool.Schema()
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snapshot.Load()
	if _, exists := old.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	next := &registrySnapshot{
		tools:   make(map[string]*registeredTool, len(old.tools)+1),
		ordered: make([]string, 0, len(old.ordered)+1),
	}
	for k, v := range old.tools {
		next.tools[k] = v
	}
	next.ordered = append(next.ordered, old.ordered...)
	next.tools[name] = &registeredTool{tool: tool, schema: compiled, raw: raw}
	next.ordered = append(next.ordered, name)

	r.snapshot.Store(next)
	return nil
}

// Lookup returns a tool by name and whether it was found.
func (r *Registry) Lookup(name string) (Tool, bool) {
	rt, ok := r.snapshot.Load().tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// ValidateInput checks the given parameters against the tool's compiled
// schema. The tool must exist; callers resolve unknown names first.
func (r *Registry) ValidateInput(name string, params json.RawMessage) error {
	rt, ok := r.snapshot.Load().tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if len(params) > MaxToolParamsSize {
		return fmt.Errorf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)
	}

	var decoded any
	input := params
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("decode tool parameters: %w", err)
	}
	if err := rt.schema.Validate(decoded); err != nil {
		return fmt.Errorf("validate tool parameters: %w", err)
	}
	return nil
}

// Schemas returns the declarative tool descriptions for a completion
// request, in registration order.
func (r *Registry) Schemas() []ToolSchema {
	snap := r.snapshot.Load()
	out := make([]ToolSchema, 0, len(snap.ordered))
	for _, name := range snap.ordered {
		rt := snap.tools[name]
		out = append(out, ToolSchema{
			Name:        name,
			Description: rt.tool.Description(),
			InputSchema: rt.raw,
		})
	}
	return out
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	snap := r.snapshot.Load()
	out := make([]string, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}
