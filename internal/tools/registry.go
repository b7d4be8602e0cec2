// Package tools is the registry of side-effecting operations the flow engine
// may invoke by name.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Func executes a tool. It should report failures through ToolResult.
type Func func(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult

// Tool is a named executor with an optional JSON Schema for its input.
type Tool struct {
	Name        string
	Description string
	// Schema is a JSON Schema document (draft 2020-12). Empty means any object.
	Schema string
	Fn     Func
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is a thread-safe tool registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool. It rejects empty names, nil functions, duplicates and
// schemas that do not compile.
func (r *Registry) Register(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return domain.NewEngineError(domain.ErrToolInvalid.Code, "tool name is empty")
	}
	if t.Fn == nil {
		return domain.NewEngineError(domain.ErrToolInvalid.Code, "tool "+t.Name+" has no function")
	}

	var schema *jsonschema.Schema
	if t.Schema != "" {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := "mem://tools/" + t.Name + ".json"
		if err := c.AddResource(url, strings.NewReader(t.Schema)); err != nil {
			return domain.WrapEngineError(domain.ErrToolInvalid.Code, "tool "+t.Name+" schema", err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return domain.WrapEngineError(domain.ErrToolInvalid.Code, "tool "+t.Name+" schema", err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return domain.NewEngineError(domain.ErrToolInvalid.Code, "tool already registered: "+t.Name)
	}
	r.tools[t.Name] = entry{tool: t, schema: schema}
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the names in want that are not registered.
func (r *Registry) Missing(want []string) []string {
	var out []string
	for _, name := range want {
		if !r.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Invoke runs the named tool at most once. Unknown tools, schema violations,
// panics and cancellation come back as a failed ToolResult, never as a panic.
func (r *Registry) Invoke(ctx context.Context, name string, actor domain.ActorContext, input map[string]any) (res domain.ToolResult) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ToolResult{OK: false, Message: "tool not registered: " + name}
	}

	if err := ctx.Err(); err != nil {
		return domain.ToolResult{OK: false, Message: "cancelled before " + name + " ran: " + err.Error()}
	}

	if e.schema != nil {
		doc, err := normalize(input)
		if err != nil {
			return domain.ToolResult{OK: false, Message: "invalid input for " + name + ": " + err.Error()}
		}
		if err := e.schema.Validate(doc); err != nil {
			return domain.ToolResult{OK: false, Message: "invalid input for " + name + ": " + err.Error()}
		}
	}

	defer func() {
		if p := recover(); p != nil {
			res = domain.ToolResult{OK: false, Message: fmt.Sprintf("tool %s panicked: %v", name, p)}
		}
	}()

	if input == nil {
		input = map[string]any{}
	}
	res = e.tool.Fn(ctx, actor, input)
	if res.OK && ctx.Err() != nil {
		// The side effect may have happened; report it without claiming success.
		return domain.ToolResult{OK: false, Data: res.Data, Message: "context ended while " + name + " ran: " + ctx.Err().Error()}
	}
	return res
}

// normalize re-decodes input the way the schema validator expects JSON values.
func normalize(input map[string]any) (any, error) {
	if input == nil {
		input = map[string]any{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
