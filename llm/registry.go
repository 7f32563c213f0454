package llm

import (
	"sort"
	"strings"
	"sync"
)

// ToolRegistry stores tools by name for execution. A tool may be registered
// under a dotted, namespace-qualified name (e.g. "github.search") and still
// be resolved when the model calls it by its short name, and vice versa.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Spec().Name] = tool
}

func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under exactly name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Resolve looks a call name up in two steps: exact match first, then
// dotted-suffix matching in both directions: the call name with its dotted
// namespace stripped, and registered qualified names whose final segment
// equals the call name. An ambiguous suffix match does not resolve.
func (r *ToolRegistry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tool, ok := r.tools[name]; ok {
		return tool, true
	}

	// Call came in qualified, tool registered short.
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		if tool, ok := r.tools[name[idx+1:]]; ok {
			return tool, true
		}
	}

	// Call came in short, tool registered qualified.
	var match Tool
	var matches int
	for registered, tool := range r.tools {
		if strings.HasSuffix(registered, "."+name) {
			match = tool
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	return nil, false
}

// Specs returns all registered tool specs, sorted by name for deterministic
// request payloads.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}
