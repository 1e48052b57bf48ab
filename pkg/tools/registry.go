// Package tools holds the tool registry and the dispatcher that bridges
// tool-invocation requests from the live session to backend handlers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Handler executes one tool call. The input is the raw argument object,
// already validated against the registration's schema.
//
// Handlers return domain negatives (customer not found, plan not found)
// as part of their payload; a returned error means the tool itself failed
// and becomes a tool_failed result.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Registration binds a tool name to its schema, handler and timeout.
// Populated at startup, read-only thereafter.
type Registration struct {
	Name        string
	Description string
	InputSchema *JSONSchema
	Handler     Handler
	Timeout     time.Duration
}

// Make builds a Registration from a typed handler, generating the
// argument schema from T by reflection.
func Make[T any](name, description string, fn func(ctx context.Context, input T) (any, error)) Registration {
	return Registration{
		Name:        name,
		Description: description,
		InputSchema: SchemaFor[T](),
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var input T
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, err
			}
			return fn(ctx, input)
		},
	}
}

// Registry maps tool names to registrations. Read-only after New and
// safely shared across sessions.
type Registry struct {
	byName map[string]Registration
}

// NewRegistry builds a registry. Duplicate or empty names and nil
// handlers are configuration mistakes and fail construction.
func NewRegistry(regs ...Registration) (*Registry, error) {
	r := &Registry{byName: make(map[string]Registration, len(regs))}
	for i, reg := range regs {
		name := strings.TrimSpace(reg.Name)
		if name == "" {
			return nil, fmt.Errorf("tool registration %d: name must not be empty", i)
		}
		if reg.Handler == nil {
			return nil, fmt.Errorf("tool %q: handler must not be nil", name)
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("tool %q registered twice", name)
		}
		r.byName[name] = reg
	}
	return r, nil
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	if r == nil {
		return Registration{}, false
	}
	reg, ok := r.byName[strings.TrimSpace(name)]
	return reg, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the declared tool surface in the shape the upstream
// session configuration expects.
func (r *Registry) Definitions() []map[string]any {
	if r == nil {
		return nil
	}
	defs := make([]map[string]any, 0, len(r.byName))
	for _, name := range r.Names() {
		reg := r.byName[name]
		defs = append(defs, map[string]any{
			"type":        "function",
			"name":        reg.Name,
			"description": reg.Description,
			"parameters":  reg.InputSchema,
		})
	}
	return defs
}
