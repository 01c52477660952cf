package mcp

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// registry holds every tool, static resource, resource template, and prompt
// a server has registered. Iteration order is registration order, which is
// what tools/list, resources/templates/list, and prompts/list expose to
// clients; resources/list is instead sorted by URI (sortedResourceValues in
// server.go).
//
// Before Start, registration goes through the owning Server's startupMutex,
// enforcing single-actor configuration, and Start re-stores each tool with
// its middleware applied. Once the server is running, UpdateTools replaces
// the tool set under the registry's own mu.
type registry struct {
	mu sync.RWMutex

	tools             *orderedmap.OrderedMap[string, Tool]
	resources         *orderedmap.OrderedMap[string, Resource]
	resourceTemplates *orderedmap.OrderedMap[string, resourceTemplate]
	prompts           *orderedmap.OrderedMap[string, Prompt]
}

func newRegistry() *registry {
	return &registry{
		tools:             orderedmap.New[string, Tool](),
		resources:         orderedmap.New[string, Resource](),
		resourceTemplates: orderedmap.New[string, resourceTemplate](),
		prompts:           orderedmap.New[string, Prompt](),
	}
}

func (r *registry) addTool(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools.Get(t.Name); exists {
		return &toolAlreadyRegisteredError{name: t.Name}
	}
	r.tools.Set(t.Name, t)
	return nil
}

func (r *registry) tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Get(name)
}

func (r *registry) allTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// UpdateTools atomically replaces the entire tool snapshot. It is rejected
// unless the server has declared tools.listChanged, since a client that never
// negotiated the capability has no way to learn the list changed underneath it.
func (r *registry) updateTools(tools []Tool, listChangedDeclared bool) error {
	if !listChangedDeclared {
		return &CapabilityNotSupportedError{Capability: "tools.listChanged"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := orderedmap.New[string, Tool]()
	for _, t := range tools {
		next.Set(t.Name, t)
	}
	r.tools = next
	return nil
}

func (r *registry) addResource(uri string, res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources.Get(uri); exists {
		return &resourceAlreadyRegisteredError{uri: uri}
	}
	r.resources.Set(uri, res)
	return nil
}

func (r *registry) allResources() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, r.resources.Len())
	for pair := r.resources.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *registry) addResourceTemplate(name string, tmpl resourceTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resourceTemplates.Get(name); exists {
		return &templateAlreadyRegisteredError{name: name}
	}
	r.resourceTemplates.Set(name, tmpl)
	return nil
}

func (r *registry) allResourceTemplates() []resourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]resourceTemplate, 0, r.resourceTemplates.Len())
	for pair := r.resourceTemplates.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *registry) addPrompt(p Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prompts.Get(p.Name); exists {
		return &promptAlreadyRegisteredError{name: p.Name}
	}
	r.prompts.Set(p.Name, p)
	return nil
}

func (r *registry) prompt(name string) (Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prompts.Get(name)
}

func (r *registry) allPrompts() []Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Prompt, 0, r.prompts.Len())
	for pair := r.prompts.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// toolAlreadyRegisteredError, resourceAlreadyRegisteredError,
// templateAlreadyRegisteredError and promptAlreadyRegisteredError all wrap
// ErrAlreadyRegistered so callers can errors.Is against the sentinel while
// still getting a descriptive message naming the collision.

type toolAlreadyRegisteredError struct{ name string }

func (e *toolAlreadyRegisteredError) Error() string {
	return "tool " + e.name + ": " + ErrAlreadyRegistered.Error()
}

func (e *toolAlreadyRegisteredError) Unwrap() error { return ErrAlreadyRegistered }

type resourceAlreadyRegisteredError struct{ uri string }

func (e *resourceAlreadyRegisteredError) Error() string {
	return "resource " + e.uri + ": " + ErrAlreadyRegistered.Error()
}

func (e *resourceAlreadyRegisteredError) Unwrap() error { return ErrAlreadyRegistered }

type templateAlreadyRegisteredError struct{ name string }

func (e *templateAlreadyRegisteredError) Error() string {
	return "resource template " + e.name + ": " + ErrAlreadyRegistered.Error()
}

func (e *templateAlreadyRegisteredError) Unwrap() error { return ErrAlreadyRegistered }

type promptAlreadyRegisteredError struct{ name string }

func (e *promptAlreadyRegisteredError) Error() string {
	return "prompt " + e.name + ": " + ErrAlreadyRegistered.Error()
}

func (e *promptAlreadyRegisteredError) Unwrap() error { return ErrAlreadyRegistered }
